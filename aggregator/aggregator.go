// Package aggregator recomputes per-company signal metrics from the
// company's canonical offers and their catalog scores. The computation is
// a pure function over the store projection; persistence touches only the
// metric columns, never identity or resolution.
package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/common/timeutil"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const (
	// StrongScoreThreshold marks an offer as strong signal.
	StrongScoreThreshold = 6

	_chunkSize    = 50
	_maxRetries   = 2
	_retryBackoff = 100 * time.Millisecond
)

// BatchResult summarizes one AggregateMany call.
type BatchResult struct {
	OKCount     int
	FailedCount int
}

// Aggregator recomputes and persists company metrics.
type Aggregator interface {
	// Recompute rebuilds the metrics of one company from current store
	// state. Idempotent.
	Recompute(ctx context.Context, companyID int64) error

	// AggregateMany recomputes each distinct company in chunks, retrying
	// per-company failures. It never returns an error; failures are logged
	// and counted.
	AggregateMany(ctx context.Context, companyIDs []int64) BatchResult
}

// New returns an Aggregator over the given stores.
func New(offers storage.OfferStore, companies storage.CompanyStore) Aggregator {
	return &aggregator{offers: offers, companies: companies}
}

type aggregator struct {
	offers    storage.OfferStore
	companies storage.CompanyStore
}

// Compute derives the metric slice from the canonical offer projection.
// Offers without a match row contribute to the counts but never to score
// derived fields.
func Compute(stats []storage.CanonicalOfferStats) storage.Aggregation {
	agg := storage.Aggregation{UniqueOfferCount: len(stats)}

	categoryMax := map[int64]int{}
	var top *storage.CanonicalOfferStats
	var strongSum, strongCount int
	var lastStrong string

	for i := range stats {
		st := &stats[i]
		agg.OfferCount += 1 + st.RepostCount
		if st.Score == nil {
			continue
		}
		score := *st.Score
		if score > agg.MaxScore {
			agg.MaxScore = score
		}
		if st.CategoryID != nil && score > categoryMax[*st.CategoryID] {
			categoryMax[*st.CategoryID] = score
		}
		if top == nil || beats(st, top) {
			top = st
		}
		if score >= StrongScoreThreshold {
			strongCount++
			strongSum += score
			if st.PublishedAt != nil && *st.PublishedAt > lastStrong {
				lastStrong = *st.PublishedAt
			}
		}
	}

	agg.StrongOfferCount = strongCount
	if strongCount > 0 {
		avg := float64(strongSum) / float64(strongCount)
		agg.AvgStrongScore = &avg
	}
	if top != nil {
		id := top.OfferID
		agg.TopOfferID = &id
		if top.CategoryID != nil {
			cat := *top.CategoryID
			agg.TopCategoryID = &cat
		}
	}
	if len(categoryMax) > 0 {
		// json.Marshal sorts map keys, so the serialized form is stable.
		if data, err := json.Marshal(categoryMax); err == nil {
			s := string(data)
			agg.CategoryMaxScores = &s
		}
	}
	if lastStrong != "" {
		agg.LastStrongAt = &lastStrong
	}
	return agg
}

// beats orders candidates for top offer: higher score, then newer
// publication, then lower id.
func beats(candidate, current *storage.CanonicalOfferStats) bool {
	if *candidate.Score != *current.Score {
		return *candidate.Score > *current.Score
	}
	var cp, bp string
	if candidate.PublishedAt != nil {
		cp = *candidate.PublishedAt
	}
	if current.PublishedAt != nil {
		bp = *current.PublishedAt
	}
	if cp != bp {
		return cp > bp
	}
	return candidate.OfferID < current.OfferID
}

func (a *aggregator) Recompute(ctx context.Context, companyID int64) error {
	stats, err := a.offers.ListCanonicalOfferStats(ctx, companyID)
	if err != nil {
		return errors.Wrapf(err, "failed to load canonical offers of company %d", companyID)
	}
	if err := a.companies.UpdateCompanyAggregation(ctx, companyID, Compute(stats)); err != nil {
		return errors.Wrapf(err, "failed to persist aggregation of company %d", companyID)
	}
	return nil
}

func (a *aggregator) AggregateMany(ctx context.Context, companyIDs []int64) BatchResult {
	ids := dedupe(companyIDs)

	var result BatchResult
	for start := 0; start < len(ids); start += _chunkSize {
		end := start + _chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if a.recomputeWithRetry(ctx, id) {
				result.OKCount++
			} else {
				result.FailedCount++
			}
		}
	}
	return result
}

func (a *aggregator) recomputeWithRetry(ctx context.Context, companyID int64) bool {
	var lastErr error
	for attempt := 0; attempt <= _maxRetries; attempt++ {
		if attempt > 0 && !timeutil.Sleep(ctx, _retryBackoff) {
			break
		}
		if lastErr = a.Recompute(ctx, companyID); lastErr == nil {
			return true
		}
		log.WithFields(log.Fields{
			"company_id": companyID,
			"attempt":    attempt + 1,
		}).WithError(lastErr).Warn("Company aggregation attempt failed")
	}
	log.WithField("company_id", companyID).
		WithError(lastErr).
		Error("Company aggregation failed, giving up")
	return false
}

// dedupe drops repeated ids preserving first-seen order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
