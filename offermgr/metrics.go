package offermgr

import (
	"github.com/uber-go/tally"
)

// Metrics is a placeholder for all metrics in the offer persistence
// pipeline.
type Metrics struct {
	OffersUpserted tally.Counter
	OffersReposts  tally.Counter

	SkippedMissingDescription tally.Counter
	SkippedUnidentifiable     tally.Counter
	SkippedResolved           tally.Counter

	PersistDBErrors tally.Counter

	MatchesComputed tally.Counter
	MatchesFailed   tally.Counter

	BatchesSucceeded tally.Counter
	BatchesFailed    tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) *Metrics {
	offerScope := scope.SubScope("offer")
	skipScope := offerScope.SubScope("skipped")
	matchScope := scope.SubScope("match")
	batchScope := scope.SubScope("batch")
	batchSuccessScope := batchScope.Tagged(map[string]string{"result": "success"})
	batchFailScope := batchScope.Tagged(map[string]string{"result": "fail"})

	return &Metrics{
		OffersUpserted: offerScope.Counter("upserted"),
		OffersReposts:  offerScope.Counter("reposts"),

		SkippedMissingDescription: skipScope.Counter("missing_description"),
		SkippedUnidentifiable:     skipScope.Counter("company_unidentifiable"),
		SkippedResolved:           skipScope.Counter("company_resolved"),

		PersistDBErrors: offerScope.Counter("db_errors"),

		MatchesComputed: matchScope.Counter("computed"),
		MatchesFailed:   matchScope.Counter("failed"),

		BatchesSucceeded: batchSuccessScope.Counter("runs"),
		BatchesFailed:    batchFailScope.Counter("runs"),
	}
}
