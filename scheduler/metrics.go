package scheduler

import "github.com/uber-go/tally"

// Metrics is a placeholder for all metrics in scheduler.
type Metrics struct {
	Cycles        tally.Counter
	CycleFailures tally.Counter
	LockMissed    tally.Counter
	PhaseFailures tally.Counter

	QueriesSucceeded tally.Counter
	QueriesFailed    tally.Counter
	QueriesSkipped   tally.Counter
	QueryRetries     tally.Counter
	RateLimitPauses  tally.Counter
	FatalErrors      tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) *Metrics {
	schedulerScope := scope.SubScope("scheduler")
	cycleScope := schedulerScope.SubScope("cycle")
	queryScope := schedulerScope.SubScope("query")

	return &Metrics{
		Cycles:        cycleScope.Counter("runs"),
		CycleFailures: cycleScope.Counter("failures"),
		LockMissed:    cycleScope.Counter("lock_missed"),
		PhaseFailures: cycleScope.Counter("phase_failures"),

		QueriesSucceeded: queryScope.Counter("succeeded"),
		QueriesFailed:    queryScope.Counter("failed"),
		QueriesSkipped:   queryScope.Counter("skipped"),
		QueryRetries:     queryScope.Counter("retries"),
		RateLimitPauses:  queryScope.Counter("rate_limit_pauses"),
		FatalErrors:      queryScope.Counter("fatal_errors"),
	}
}
