package feedback

import "github.com/uber-go/tally"

// Metrics is a placeholder for all metrics in feedback.
type Metrics struct {
	RunsSkipped tally.Counter
	RunsApplied tally.Counter

	ChangesApplied tally.Counter
	Destructive    tally.Counter
	Reversals      tally.Counter
	Informational  tally.Counter
	UpdateFailures tally.Counter

	OffersDeleted  tally.Counter
	DeleteFailures tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) *Metrics {
	feedbackScope := scope.SubScope("feedback")
	changeScope := feedbackScope.SubScope("change")

	return &Metrics{
		RunsSkipped: feedbackScope.Counter("runs_skipped"),
		RunsApplied: feedbackScope.Counter("runs_applied"),

		ChangesApplied: changeScope.Counter("applied"),
		Destructive:    changeScope.Counter("destructive"),
		Reversals:      changeScope.Counter("reversals"),
		Informational:  changeScope.Counter("informational"),
		UpdateFailures: changeScope.Counter("update_failures"),

		OffersDeleted:  feedbackScope.Counter("offers_deleted"),
		DeleteFailures: feedbackScope.Counter("delete_failures"),
	}
}
