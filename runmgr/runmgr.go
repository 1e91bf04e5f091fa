// Package runmgr records ingestion runs. Every run row is finalized on
// every exit path, including panics and context cancellation, so the run
// history never shows a stuck "running" row from a completed process.
package runmgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// RunFunc is the body executed under a managed run. The counter
// accumulator is owned by this run and persisted when the run finishes.
type RunFunc func(ctx context.Context, runID int64, counters *storage.RunCounters) error

// Manager starts and finishes run records.
type Manager interface {
	StartRun(ctx context.Context, provider, queryFingerprint string) (int64, error)
	FinishRun(ctx context.Context, runID int64, status storage.RunStatus, counters storage.RunCounters) error

	// WithRun runs fn inside a run record. The run finishes with status
	// success when fn returns nil and failure otherwise; a panic still
	// finalizes the row before propagating.
	WithRun(ctx context.Context, provider, queryFingerprint string, fn RunFunc) error
}

// New returns a Manager over the given run store.
func New(store storage.RunStore) Manager {
	return &manager{store: store, nowFn: time.Now}
}

type manager struct {
	store storage.RunStore
	nowFn func() time.Time
}

func (m *manager) now() string { return storage.FormatTime(m.nowFn()) }

func (m *manager) StartRun(ctx context.Context, provider, queryFingerprint string) (int64, error) {
	runID, err := m.store.CreateRun(ctx, provider, queryFingerprint, m.now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to create run record")
	}
	log.WithFields(log.Fields{
		"run_id":   runID,
		"provider": provider,
		"query":    queryFingerprint,
	}).Debug("Ingestion run started")
	return runID, nil
}

// FinishRun persists the terminal status and counters and emits the single
// summary entry for the run.
func (m *manager) FinishRun(ctx context.Context, runID int64, status storage.RunStatus, counters storage.RunCounters) error {
	if err := m.store.FinishRun(ctx, runID, status, m.now(), counters); err != nil {
		return errors.Wrapf(err, "failed to finish run %d", runID)
	}
	log.WithFields(log.Fields{
		"run_id":               runID,
		"status":               status,
		"pages_fetched":        counters.PagesFetched,
		"offers_fetched":       counters.OffersFetched,
		"offers_upserted":      counters.OffersUpserted,
		"offers_duplicates":    counters.OffersDuplicates,
		"offers_skipped":       counters.OffersSkipped,
		"offers_failed":        counters.OffersFailed,
		"companies_aggregated": counters.CompaniesAggregated,
		"companies_failed":     counters.CompaniesFailed,
		"rate_limited":         counters.RateLimited,
		"errors":               counters.Errors,
	}).Info("Ingestion run finished")
	return nil
}

func (m *manager) WithRun(ctx context.Context, provider, queryFingerprint string, fn RunFunc) error {
	runID, err := m.StartRun(ctx, provider, queryFingerprint)
	if err != nil {
		return err
	}

	counters := &storage.RunCounters{}
	status := storage.RunStatusFailure
	defer func() {
		// Finalization must survive the caller's cancellation, so it runs
		// on a fresh context.
		if ferr := m.FinishRun(context.Background(), runID, status, *counters); ferr != nil {
			log.WithField("run_id", runID).WithError(ferr).Error("Failed to finalize run record")
		}
	}()

	if err := fn(ctx, runID, counters); err != nil {
		return errors.Wrapf(err, "run %d failed", runID)
	}
	status = storage.RunStatusSuccess
	return nil
}
