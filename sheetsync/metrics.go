package sheetsync

import "github.com/uber-go/tally"

// Metrics is a placeholder for all metrics in sheetsync.
type Metrics struct {
	Syncs         tally.Counter
	RowsAppended  tally.Counter
	RowsUpdated   tally.Counter
	WriteFailures tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) *Metrics {
	syncScope := scope.SubScope("sheet_sync")
	return &Metrics{
		Syncs:         syncScope.Counter("syncs"),
		RowsAppended:  syncScope.Counter("rows_appended"),
		RowsUpdated:   syncScope.Counter("rows_updated"),
		WriteFailures: syncScope.Counter("write_failures"),
	}
}
