package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"

	"github.com/banasa44/buiss-scrapper-sub000/coordination"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
	"github.com/banasa44/buiss-scrapper-sub000/storage/sqlite"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorClass
	}{
		{"authentication failed for client", ClassFatal},
		{"401 Unauthorized", ClassFatal},
		{"missing credentials", ClassFatal},
		{"invalid config: sheet id unset", ClassFatal},
		{"infojobs: search returned status 429: slow down", ClassRateLimit},
		{"Rate limit exceeded", ClassRateLimit},
		{"too many requests", ClassRateLimit},
		{"dial tcp: connection refused", ClassTransient},
		{"context deadline exceeded (Client.Timeout)", ClassTransient},
		{"lookup api.infojobs.net: no such host", ClassTransient},
		{"search returned status 503: maintenance", ClassTransient},
		{"something entirely novel", ClassTransient},
		// Fatal markers win over rate-limit ones.
		{"credential check got 429", ClassFatal},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(errors.New(tc.msg)))
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, truncateMessage(short))

	long := make([]rune, 0, 600)
	for i := 0; i < 600; i++ {
		long = append(long, 'ñ')
	}
	truncated := truncateMessage(string(long))
	assert.Equal(t, _maxErrorMessageLen, len([]rune(truncated)))
}

func TestQueryKeyStable(t *testing.T) {
	a := Query{Client: "infojobs", Name: "search", Params: map[string]string{"q": "treasury", "province": "madrid"}}
	b := Query{Client: "infojobs", Name: "search", Params: map[string]string{"province": "madrid", "q": "treasury"}}
	assert.Equal(t, a.Key(), b.Key())
	assert.Regexp(t, `^infojobs:search:[0-9a-f]{8}$`, a.Key())

	c := Query{Client: "infojobs", Name: "search", Params: map[string]string{"q": "accounting"}}
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestNewRegistryValidates(t *testing.T) {
	runner := func(context.Context, string) (*string, error) { return nil, nil }

	_, err := NewRegistry(Query{Client: "infojobs", Name: "search"})
	assert.Error(t, err)

	_, err = NewRegistry(
		Query{Client: "infojobs", Name: "search", Runner: runner},
		Query{Client: "infojobs", Name: "search", Runner: runner},
	)
	assert.Error(t, err)

	r, err := NewRegistry(
		Query{Client: "infojobs", Name: "search", Params: map[string]string{"q": "a"}, Runner: runner},
		Query{Client: "factorial", Name: "boards", Runner: runner},
		Query{Client: "infojobs", Name: "search", Params: map[string]string{"q": "b"}, Runner: runner},
	)
	assert.NoError(t, err)
	assert.Len(t, r.Queries(), 3)
	assert.Equal(t, []string{"infojobs", "factorial"}, r.Clients())
}

type SchedulerTestSuite struct {
	suite.Suite

	store  *sqlite.Store
	pauser *coordination.Pauser
	ctx    context.Context
}

func (s *SchedulerTestSuite) SetupTest() {
	store, err := sqlite.Open(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(context.Background()))
	s.store = store
	s.pauser = coordination.NewPauser(store)
	s.ctx = context.Background()
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.store.Close()
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

// newScheduler builds a scheduler with sleeps collapsed to zero.
func (s *SchedulerTestSuite) newScheduler(registry *Registry) *Scheduler {
	sched := New(
		s.store,
		s.store,
		coordination.NewRunLock(s.store, time.Minute),
		s.pauser,
		registry,
		Config{
			RetryAttempts: 3,
			RetryGap:      time.Millisecond,
			JitterMin:     time.Nanosecond,
			JitterMax:     time.Nanosecond,
			PauseDuration: 6 * time.Hour,
		},
		NewMetrics(tally.NoopScope),
	)
	sched.randFn = func(min, max time.Duration) time.Duration { return 0 }
	return sched
}

func (s *SchedulerTestSuite) registryOf(queries ...Query) *Registry {
	r, err := NewRegistry(queries...)
	s.Require().NoError(err)
	return r
}

func (s *SchedulerTestSuite) TestRunOnceAllSucceed() {
	calls := map[string]int{}
	runner := func(name string) RunnerFunc {
		return func(ctx context.Context, queryKey string) (*string, error) {
			calls[name]++
			return nil, nil
		}
	}
	registry := s.registryOf(
		Query{Client: "infojobs", Name: "treasury", Runner: runner("treasury")},
		Query{Client: "infojobs", Name: "accounting", Runner: runner("accounting")},
	)
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(CycleStats{LockHeld: true, QueriesRun: 2, QueriesOK: 2}, stats)
	s.Equal(map[string]int{"treasury": 1, "accounting": 1}, calls)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Require().NotNil(state)
	s.Equal(storage.QueryStatusSuccess, state.Status)
	s.Equal(0, state.ConsecutiveFailures)

	// The lock is released at cycle end.
	lock, err := s.store.GetLock(s.ctx, coordination.LockName)
	s.NoError(err)
	s.Nil(lock)
}

func (s *SchedulerTestSuite) TestRunOnceLockHeldElsewhere() {
	other := coordination.NewRunLock(s.store, time.Minute)
	acquired, err := other.Acquire(s.ctx)
	s.Require().NoError(err)
	s.Require().True(acquired)

	ran := false
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		ran = true
		return nil, nil
	}})
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(CycleStats{}, stats)
	s.False(ran)
}

func (s *SchedulerTestSuite) TestTransientRetriesThenSucceeds() {
	attempts := 0
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return nil, nil
	}})
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(3, attempts)
	s.Equal(1, stats.QueriesOK)
	s.Equal(0, stats.QueriesFailed)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Equal(storage.QueryStatusSuccess, state.Status)
	s.Equal(0, state.ConsecutiveFailures)
}

func (s *SchedulerTestSuite) TestTransientExhaustsAttempts() {
	attempts := 0
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		attempts++
		return nil, errors.New("upstream timeout")
	}})
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(3, attempts)
	s.Equal(1, stats.QueriesFailed)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Equal(storage.QueryStatusError, state.Status)
	s.Equal(3, state.ConsecutiveFailures)
	s.Equal("TRANSIENT", *state.LastErrorCode)
	s.Equal("upstream timeout", *state.LastErrorMessage)
}

func (s *SchedulerTestSuite) TestFatalStopsRetrying() {
	attempts := 0
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		attempts++
		return nil, errors.New("authentication failed")
	}})
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(1, attempts)
	s.Equal(1, stats.QueriesFailed)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Equal("FATAL", *state.LastErrorCode)
}

func (s *SchedulerTestSuite) TestRateLimitPausesClient() {
	attempts := 0
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		attempts++
		return nil, errors.New("search returned status 429: slow down")
	}})
	sched := s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(1, attempts)
	s.Equal(1, stats.QueriesFailed)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Equal("RATE_LIMIT", *state.LastErrorCode)

	pause, err := s.store.GetPause(s.ctx, "infojobs")
	s.NoError(err)
	s.Require().NotNil(pause)
	s.Equal("RATE_LIMIT", *pause.Reason)

	// The next cycle skips the paused client without touching the runner.
	stats, err = sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal(1, attempts)
	s.Equal(CycleStats{LockHeld: true, QueriesSkipped: 1}, stats)
}

func (s *SchedulerTestSuite) TestLastProcessedDatePersisted() {
	mark := "2026-08-20T10:00:00Z"
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		return &mark, nil
	}})
	sched := s.newScheduler(registry)

	_, err := sched.RunOnce(s.ctx)
	s.NoError(err)

	state, err := s.store.GetQueryState(s.ctx, registry.Queries()[0].Key())
	s.NoError(err)
	s.Require().NotNil(state.LastProcessedDate)
	s.Equal(mark, *state.LastProcessedDate)
}

func (s *SchedulerTestSuite) TestPhasesRunAroundQueries() {
	var order []string
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		order = append(order, "query")
		return nil, nil
	}})
	sched := s.newScheduler(registry)
	sched.AddPrePhase("discovery", func(ctx context.Context) error {
		order = append(order, "discovery")
		return nil
	})
	sched.AddPrePhase("feedback", func(ctx context.Context) error {
		order = append(order, "feedback")
		return errors.New("window closed badly")
	})
	sched.AddPostPhase("sheet_sync", func(ctx context.Context) error {
		order = append(order, "sheet_sync")
		return nil
	})

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal([]string{"discovery", "feedback", "query", "sheet_sync"}, order)
	s.Equal(1, stats.PhasesFailed)
	s.Equal(1, stats.QueriesOK)
}

func (s *SchedulerTestSuite) TestStopRequestEndsCycleEarly() {
	var ran []string
	var sched *Scheduler
	registry := s.registryOf(
		Query{Client: "infojobs", Name: "first", Runner: func(ctx context.Context, _ string) (*string, error) {
			ran = append(ran, "first")
			sched.RequestStop()
			return nil, nil
		}},
		Query{Client: "infojobs", Name: "second", Runner: func(ctx context.Context, _ string) (*string, error) {
			ran = append(ran, "second")
			return nil, nil
		}},
	)
	sched = s.newScheduler(registry)

	stats, err := sched.RunOnce(s.ctx)
	s.NoError(err)
	s.Equal([]string{"first"}, ran)
	s.Equal(1, stats.QueriesRun)

	// The lock is still released on the early exit.
	lock, err := s.store.GetLock(s.ctx, coordination.LockName)
	s.NoError(err)
	s.Nil(lock)
}

func (s *SchedulerTestSuite) TestRunForeverStopsAfterCycle() {
	cycles := 0
	var sched *Scheduler
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(ctx context.Context, _ string) (*string, error) {
		cycles++
		if cycles == 2 {
			sched.RequestStop()
		}
		return nil, nil
	}})
	sched = s.newScheduler(registry)

	err := sched.RunForever(s.ctx)
	s.NoError(err)
	s.Equal(2, cycles)
}

func (s *SchedulerTestSuite) TestRunForeverHonorsContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	registry := s.registryOf(Query{Client: "infojobs", Name: "q", Runner: func(runCtx context.Context, _ string) (*string, error) {
		cancel()
		return nil, runCtx.Err()
	}})
	sched := s.newScheduler(registry)

	err := sched.RunForever(ctx)
	s.Error(err)
}
