package scheduler

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/banasa44/buiss-scrapper-sub000/coordination"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const (
	_defaultRetryAttempts = 3
	_defaultRetryGap      = 2 * time.Second
	_defaultJitterMin     = 10 * time.Second
	_defaultJitterMax     = 60 * time.Second
	_defaultCycleSleepMin = 45 * time.Minute
	_defaultCycleSleepMax = 90 * time.Minute
	_defaultFallbackSleep = 120 * time.Second
)

// Config tunes cycle pacing. Zero fields fall back to defaults.
type Config struct {
	// RetryAttempts is the total attempt count per query, first try
	// included.
	RetryAttempts int
	RetryGap      time.Duration

	// Jitter bounds the random sleep between queries inside a cycle.
	JitterMin time.Duration
	JitterMax time.Duration

	CycleSleepMin time.Duration
	CycleSleepMax time.Duration

	// FallbackSleep is applied after a cycle-level failure.
	FallbackSleep time.Duration

	// PauseDuration is how long a rate-limited client stays paused.
	PauseDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = _defaultRetryAttempts
	}
	if c.RetryGap <= 0 {
		c.RetryGap = _defaultRetryGap
	}
	if c.JitterMin <= 0 && c.JitterMax <= 0 {
		c.JitterMin = _defaultJitterMin
		c.JitterMax = _defaultJitterMax
	}
	if c.CycleSleepMin <= 0 && c.CycleSleepMax <= 0 {
		c.CycleSleepMin = _defaultCycleSleepMin
		c.CycleSleepMax = _defaultCycleSleepMax
	}
	if c.FallbackSleep <= 0 {
		c.FallbackSleep = _defaultFallbackSleep
	}
	if c.PauseDuration <= 0 {
		c.PauseDuration = coordination.DefaultPauseDuration
	}
	return c
}

// Migrator applies pending schema migrations before a cycle touches the
// store.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Phase is an auxiliary cycle stage run while the run lock is held.
// Phase failures are counted and logged, never fatal to the cycle.
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// CycleStats summarizes one cycle.
type CycleStats struct {
	LockHeld       bool
	QueriesRun     int
	QueriesOK      int
	QueriesFailed  int
	QueriesSkipped int
	PhasesFailed   int
}

// Scheduler walks the registry once per cycle, strictly sequentially,
// holding the global run lock for the whole cycle.
type Scheduler struct {
	migrator Migrator
	states   storage.QueryStateStore
	lock     *coordination.RunLock
	pauser   *coordination.Pauser
	registry *Registry
	cfg      Config
	metrics  *Metrics

	prePhases  []Phase
	postPhases []Phase

	nowFn  func() time.Time
	randFn func(min, max time.Duration) time.Duration
	exitFn func(int)

	stopped  *atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New returns a Scheduler over the given registry.
func New(
	migrator Migrator,
	states storage.QueryStateStore,
	lock *coordination.RunLock,
	pauser *coordination.Pauser,
	registry *Registry,
	cfg Config,
	metrics *Metrics,
) *Scheduler {
	return &Scheduler{
		migrator: migrator,
		states:   states,
		lock:     lock,
		pauser:   pauser,
		registry: registry,
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		nowFn:    time.Now,
		randFn:   durationBetween,
		exitFn:   os.Exit,
		stopped:  atomic.NewBool(false),
		stopCh:   make(chan struct{}),
	}
}

// AddPrePhase registers a phase run after query states are ensured and
// before the first query.
func (s *Scheduler) AddPrePhase(name string, run func(ctx context.Context) error) {
	s.prePhases = append(s.prePhases, Phase{Name: name, Run: run})
}

// AddPostPhase registers a phase run after the last query.
func (s *Scheduler) AddPostPhase(name string, run func(ctx context.Context) error) {
	s.postPhases = append(s.postPhases, Phase{Name: name, Run: run})
}

// RequestStop makes the scheduler finish the in-flight query and end the
// current cycle without starting another. Safe to call more than once.
func (s *Scheduler) RequestStop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

func (s *Scheduler) stopRequested() bool { return s.stopped.Load() }

// RunOnce executes one full cycle. A lock held elsewhere is a normal
// outcome: the cycle is skipped with zeroed stats and a nil error.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	if err := s.migrator.Migrate(ctx); err != nil {
		return stats, errors.Wrap(err, "apply migrations")
	}

	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "acquire run lock")
	}
	if !acquired {
		if s.metrics != nil {
			s.metrics.LockMissed.Inc(1)
		}
		log.Warn("Run lock held elsewhere, skipping cycle")
		return stats, nil
	}
	stats.LockHeld = true
	defer func() {
		// Release must survive the cycle context's cancellation.
		if _, err := s.lock.Release(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to release run lock")
		}
	}()

	queries := s.registry.Queries()
	for i := range queries {
		q := &queries[i]
		if err := s.states.EnsureQueryState(ctx, q.Key(), q.Client, q.Name); err != nil {
			return stats, errors.Wrapf(err, "ensure state for query %s", q.Key())
		}
	}

	for _, phase := range s.prePhases {
		s.runPhase(ctx, phase, &stats)
	}

	for i := range queries {
		q := &queries[i]
		if i > 0 && !s.sleep(ctx, s.randFn(s.cfg.JitterMin, s.cfg.JitterMax)) {
			break
		}
		if s.stopRequested() {
			log.Warn("Termination requested, ending cycle early")
			break
		}
		if ctx.Err() != nil {
			return stats, errors.Wrap(ctx.Err(), "cycle interrupted")
		}

		paused, err := s.pauser.IsPaused(ctx, q.Client)
		if err != nil {
			log.WithError(err).WithField("client", q.Client).Error("Pause check failed")
			stats.QueriesFailed++
			continue
		}
		if paused {
			stats.QueriesSkipped++
			if s.metrics != nil {
				s.metrics.QueriesSkipped.Inc(1)
			}
			log.WithFields(log.Fields{
				"query":  q.Key(),
				"client": q.Client,
			}).Info("Query skipped, client paused")
			continue
		}

		stats.QueriesRun++
		if err := s.runQuery(ctx, q); err != nil {
			stats.QueriesFailed++
			if s.metrics != nil {
				s.metrics.QueriesFailed.Inc(1)
			}
			if ctx.Err() != nil {
				return stats, errors.Wrap(ctx.Err(), "cycle interrupted")
			}
		} else {
			stats.QueriesOK++
			if s.metrics != nil {
				s.metrics.QueriesSucceeded.Inc(1)
			}
		}
	}

	for _, phase := range s.postPhases {
		s.runPhase(ctx, phase, &stats)
	}

	if s.metrics != nil {
		s.metrics.Cycles.Inc(1)
	}
	log.WithFields(log.Fields{
		"queries_run":     stats.QueriesRun,
		"queries_ok":      stats.QueriesOK,
		"queries_failed":  stats.QueriesFailed,
		"queries_skipped": stats.QueriesSkipped,
		"phases_failed":   stats.PhasesFailed,
	}).Info("Cycle complete")
	return stats, nil
}

// runQuery drives one query through the attempt loop, acting on the
// outcome variant of each attempt.
func (s *Scheduler) runQuery(ctx context.Context, q *Query) error {
	key := q.Key()
	fields := log.Fields{"query": key, "client": q.Client}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			if s.metrics != nil {
				s.metrics.QueryRetries.Inc(1)
			}
			if !s.sleep(ctx, s.cfg.RetryGap) {
				return lastErr
			}
		}

		if err := s.states.MarkQueryRunning(ctx, key, s.now()); err != nil {
			return errors.Wrapf(err, "mark query %s running", key)
		}

		lastProcessed, err := q.Runner(ctx, key)
		if err == nil {
			if err := s.states.MarkQuerySuccess(ctx, key, s.now(), lastProcessed); err != nil {
				return errors.Wrapf(err, "mark query %s success", key)
			}
			log.WithFields(fields).WithField("attempt", attempt).Info("Query succeeded")
			return nil
		}

		lastErr = err
		class := Classify(err)
		if markErr := s.states.MarkQueryError(
			ctx, key, s.now(), string(class), truncateMessage(err.Error()),
		); markErr != nil {
			log.WithError(markErr).WithFields(fields).Error("Failed to record query error")
		}
		log.WithError(err).WithFields(fields).WithFields(log.Fields{
			"class":   class,
			"attempt": attempt,
		}).Warn("Query attempt failed")

		switch outcomeForClass(class) {
		case OutcomeFatal:
			if s.metrics != nil {
				s.metrics.FatalErrors.Inc(1)
			}
			log.WithError(err).WithFields(fields).Error("Query failed fatally, not retrying")
			return err
		case OutcomePause:
			if s.metrics != nil {
				s.metrics.RateLimitPauses.Inc(1)
			}
			if pauseErr := s.pauser.Pause(ctx, q.Client, s.cfg.PauseDuration, string(ClassRateLimit)); pauseErr != nil {
				log.WithError(pauseErr).WithFields(fields).Error("Failed to pause client")
			}
			return err
		case OutcomeRetryable:
		}
	}
	return lastErr
}

func (s *Scheduler) runPhase(ctx context.Context, phase Phase, stats *CycleStats) {
	if s.stopRequested() || ctx.Err() != nil {
		return
	}
	if err := phase.Run(ctx); err != nil {
		stats.PhasesFailed++
		if s.metrics != nil {
			s.metrics.PhaseFailures.Inc(1)
		}
		log.WithError(err).WithField("phase", phase.Name).Error("Cycle phase failed")
		return
	}
	log.WithField("phase", phase.Name).Debug("Cycle phase complete")
}

// sleep blocks for d, returning false when the context is cancelled or a
// stop was requested.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil && !s.stopRequested()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

func (s *Scheduler) now() string {
	return storage.FormatTime(s.nowFn())
}

func durationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
