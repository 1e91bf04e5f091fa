package scheduler

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunForever executes cycles until a termination is requested. The first
// signal lets the in-flight query finish and stops after the current
// cycle; a second signal exits the process immediately with a non-zero
// status.
func (s *Scheduler) RunForever(ctx context.Context) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go s.watchSignals(sigCh)

	for {
		if s.stopRequested() {
			log.Info("Termination requested, scheduler stopped")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stats, err := s.RunOnce(ctx)

		var sleep time.Duration
		switch {
		case err != nil && ctx.Err() != nil:
			return err
		case err != nil:
			if s.metrics != nil {
				s.metrics.CycleFailures.Inc(1)
			}
			log.WithError(err).Error("Cycle failed")
			sleep = s.cfg.FallbackSleep
		default:
			sleep = s.randFn(s.cfg.CycleSleepMin, s.cfg.CycleSleepMax)
			log.WithFields(log.Fields{
				"queries_ok":     stats.QueriesOK,
				"queries_failed": stats.QueriesFailed,
				"sleep":          sleep.String(),
			}).Info("Cycle finished, sleeping")
		}

		if !s.sleep(ctx, sleep) && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) watchSignals(sigCh <-chan os.Signal) {
	sig := <-sigCh
	log.WithField("signal", sig.String()).Warn("Termination requested, finishing current query")
	s.RequestStop()

	sig = <-sigCh
	log.WithField("signal", sig.String()).Error("Second termination signal, exiting now")
	s.exitFn(1)
}
