package feedback

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// Result summarizes one feedback pass.
type Result struct {
	Skipped bool
	Reason  string

	Read ReadStats
	Diff DiffStats

	Changes         int
	UpdatesApplied  int
	UpdatesNoop     int
	UpdatesFailed   int
	AppliedByTarget map[storage.Resolution]int

	DeletesAttempted int
	DeletesFailed    int
	OffersDeleted    int
}

// Loop runs the full feedback pass: gated read, diff, classified apply,
// audit trail.
type Loop struct {
	reader    *Reader
	companies storage.CompanyStore
	offers    storage.OfferStore
	events    storage.FeedbackEventStore
	gate      *Gate
	metrics   *Metrics
	nowFn     func() time.Time
}

// NewLoop wires the feedback loop.
func NewLoop(
	reader *Reader,
	companies storage.CompanyStore,
	offers storage.OfferStore,
	events storage.FeedbackEventStore,
	gate *Gate,
	metrics *Metrics,
) *Loop {
	return &Loop{
		reader:    reader,
		companies: companies,
		offers:    offers,
		events:    events,
		gate:      gate,
		metrics:   metrics,
		nowFn:     time.Now,
	}
}

// Process applies the sheet's resolution marks to the store. Outside the
// window it returns a skipped result without touching anything. Failures
// on individual changes are counted and logged; only read and store-load
// failures surface as errors.
func (l *Loop) Process(ctx context.Context) (Result, error) {
	result := Result{AppliedByTarget: map[storage.Resolution]int{}}

	if !l.gate.Open() {
		result.Skipped = true
		result.Reason = "window_closed"
		if l.metrics != nil {
			l.metrics.RunsSkipped.Inc(1)
		}
		log.Info("Feedback window closed, skipping")
		return result, nil
	}

	sheet, readStats, err := l.reader.Read(ctx)
	result.Read = readStats
	if err != nil {
		if errors.Cause(err) == ErrWindowClosed {
			result.Skipped = true
			result.Reason = "window_closed"
			if l.metrics != nil {
				l.metrics.RunsSkipped.Inc(1)
			}
			return result, nil
		}
		return result, errors.Wrap(err, "read feedback sheet")
	}

	current, err := l.companies.ListCompanyResolutions(ctx)
	if err != nil {
		return result, errors.Wrap(err, "load current resolutions")
	}

	changes, diffStats := Compare(sheet, current)
	result.Diff = diffStats
	result.Changes = len(changes)

	for _, change := range changes {
		l.applyChange(ctx, change, &result)
	}

	if l.metrics != nil {
		l.metrics.RunsApplied.Inc(1)
	}
	l.audit(result)
	return result, nil
}

func (l *Loop) applyChange(ctx context.Context, change Change, result *Result) {
	category := ClassifyChange(change)
	fields := log.Fields{
		"company_id": change.CompanyID,
		"from":       change.From,
		"to":         change.To,
		"category":   category,
	}

	// Resolution first, deletion second; deletion stays safe either way.
	updated, err := l.companies.UpdateCompanyResolution(ctx, change.CompanyID, change.To)
	if err != nil {
		result.UpdatesFailed++
		if l.metrics != nil {
			l.metrics.UpdateFailures.Inc(1)
		}
		log.WithError(err).WithFields(fields).Error("Failed to update company resolution")
		return
	}
	if !updated {
		result.UpdatesNoop++
		return
	}
	result.UpdatesApplied++
	result.AppliedByTarget[change.To]++
	if l.metrics != nil {
		l.metrics.ChangesApplied.Inc(1)
		switch category {
		case CategoryDestructive:
			l.metrics.Destructive.Inc(1)
		case CategoryReversal:
			l.metrics.Reversals.Inc(1)
		default:
			l.metrics.Informational.Inc(1)
		}
	}

	var offersDeleted int64
	if category == CategoryDestructive {
		result.DeletesAttempted++
		offersDeleted, err = l.offers.DeleteOffersForCompany(ctx, change.CompanyID)
		if err != nil {
			result.DeletesFailed++
			if l.metrics != nil {
				l.metrics.DeleteFailures.Inc(1)
			}
			log.WithError(err).WithFields(fields).Error("Failed to delete offers for resolved company")
			offersDeleted = 0
		} else {
			result.OffersDeleted += int(offersDeleted)
			if l.metrics != nil {
				l.metrics.OffersDeleted.Inc(offersDeleted)
			}
		}
	}

	from := string(change.From)
	if _, err := l.events.InsertFeedbackEvent(ctx, &storage.FeedbackEvent{
		CompanyID:      change.CompanyID,
		FromResolution: &from,
		ToResolution:   string(change.To),
		Category:       string(category),
		OffersDeleted:  int(offersDeleted),
		AppliedAt:      storage.FormatTime(l.nowFn()),
	}); err != nil {
		log.WithError(err).WithFields(fields).Error("Failed to record feedback event")
	}
	log.WithFields(fields).WithField("offers_deleted", offersDeleted).Debug("Applied feedback change")
}

// audit emits the single summary entry for the pass.
func (l *Loop) audit(result Result) {
	byTarget := make(map[string]int, len(result.AppliedByTarget))
	for resolution, n := range result.AppliedByTarget {
		byTarget[string(resolution)] = n
	}
	log.WithFields(log.Fields{
		"rows_total":        result.Read.TotalRows,
		"rows_valid":        result.Read.ValidRows,
		"rows_invalid":      result.Read.InvalidRows,
		"rows_duplicate":    result.Read.DuplicateRows,
		"ignored":           result.Diff.Ignored,
		"unchanged":         result.Diff.Unchanged,
		"changes":           result.Changes,
		"updates_applied":   result.UpdatesApplied,
		"updates_noop":      result.UpdatesNoop,
		"updates_failed":    result.UpdatesFailed,
		"applied_by_target": byTarget,
		"deletes_attempted": result.DeletesAttempted,
		"deletes_failed":    result.DeletesFailed,
		"offers_deleted":    result.OffersDeleted,
	}).Info("Feedback applied")
}
