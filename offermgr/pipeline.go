package offermgr

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/aggregator"
	"github.com/banasa44/buiss-scrapper-sub000/matching"
	"github.com/banasa44/buiss-scrapper-sub000/runmgr"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// BatchRequest is one provider batch to run through the pipeline.
type BatchRequest struct {
	Provider     string
	QueryKey     string
	Items        []BatchItem
	PagesFetched int
}

// Pipeline drives a batch end to end: run record, per-offer persistence,
// scoring, aggregation of affected companies, counter snapshot.
type Pipeline struct {
	persister Persister
	agg       aggregator.Aggregator
	runs      runmgr.Manager
	matches   storage.MatchStore
	scorer    matching.Scorer
	metrics   *Metrics
	nowFn     func() time.Time
}

// NewPipeline wires the batch pipeline.
func NewPipeline(
	persister Persister,
	agg aggregator.Aggregator,
	runs runmgr.Manager,
	matches storage.MatchStore,
	scorer matching.Scorer,
	metrics *Metrics,
) *Pipeline {
	return &Pipeline{
		persister: persister,
		agg:       agg,
		runs:      runs,
		matches:   matches,
		scorer:    scorer,
		metrics:   metrics,
		nowFn:     time.Now,
	}
}

// Run processes the batch inside a managed run record and returns the
// final counter snapshot. Per-offer problems become counters; only a
// cancelled context or a run-record failure surfaces as an error.
func (p *Pipeline) Run(ctx context.Context, req BatchRequest) (storage.RunCounters, error) {
	var snapshot storage.RunCounters
	err := p.runs.WithRun(ctx, req.Provider, req.QueryKey, func(ctx context.Context, runID int64, counters *storage.RunCounters) error {
		counters.PagesFetched = req.PagesFetched
		counters.OffersFetched = len(req.Items)

		var affected []int64
		for i := range req.Items {
			// Offers are processed in input order; cancellation is honored
			// between records, never inside one.
			if err := ctx.Err(); err != nil {
				counters.Errors++
				snapshot = *counters
				return err
			}

			res := p.persister.PersistOffer(ctx, req.Items[i])
			if res.CompanyID != 0 {
				affected = append(affected, res.CompanyID)
			}
			switch res.Status {
			case StatusOK:
				counters.OffersUpserted++
				p.scoreOffer(ctx, res, req.Items[i])
			case StatusRepostDuplicate:
				counters.OffersDuplicates++
			case StatusDBError:
				counters.OffersFailed++
			default:
				counters.OffersSkipped++
			}
		}

		batch := p.agg.AggregateMany(ctx, affected)
		counters.CompaniesAggregated = batch.OKCount
		counters.CompaniesFailed = batch.FailedCount

		snapshot = *counters
		return nil
	})
	if err != nil {
		p.metrics.BatchesFailed.Inc(1)
		return snapshot, err
	}
	p.metrics.BatchesSucceeded.Inc(1)
	return snapshot, nil
}

// scoreOffer computes and stores the catalog match for a persisted
// canonical offer. Scoring problems are logged, never propagated.
func (p *Pipeline) scoreOffer(ctx context.Context, res PersistResult, item BatchItem) {
	if p.scorer == nil || !res.Canonical || !item.Payload.HasDescription() {
		return
	}

	scored := p.scorer.Score(deref(item.Payload.Title), *item.Payload.Description)
	m := &storage.Match{
		OfferID:    res.OfferID,
		Score:      scored.Score,
		Detail:     scored.Detail,
		ComputedAt: storage.FormatTime(p.nowFn()),
	}
	if m.Detail == "" {
		m.Detail = "{}"
	}
	if scored.CategoryID != 0 {
		cat := scored.CategoryID
		m.CategoryID = &cat
	}

	if err := p.matches.UpsertMatch(ctx, m); err != nil {
		p.metrics.MatchesFailed.Inc(1)
		log.WithField("offer_id", res.OfferID).WithError(err).Error("Failed to persist match")
		return
	}
	p.metrics.MatchesComputed.Inc(1)
}
