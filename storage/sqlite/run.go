package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const runColumns = `
	id, provider, query_fingerprint, started_at, finished_at, status,
	pages_fetched, offers_fetched, offers_upserted, offers_duplicates,
	offers_skipped, offers_failed, companies_aggregated, companies_failed,
	rate_limited, errors`

func (s *Store) CreateRun(ctx context.Context, provider, queryFingerprint, startedAt string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (provider, query_fingerprint, started_at, status)
		VALUES (?, ?, ?, ?)`,
		provider, queryFingerprint, startedAt, storage.RunStatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "create run")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "run insert id")
}

func (s *Store) FinishRun(ctx context.Context, runID int64, status storage.RunStatus, finishedAt string, c storage.RunCounters) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET
			finished_at = ?,
			status = ?,
			pages_fetched = ?,
			offers_fetched = ?,
			offers_upserted = ?,
			offers_duplicates = ?,
			offers_skipped = ?,
			offers_failed = ?,
			companies_aggregated = ?,
			companies_failed = ?,
			rate_limited = ?,
			errors = ?
		WHERE id = ?`,
		finishedAt, status,
		c.PagesFetched, c.OffersFetched, c.OffersUpserted, c.OffersDuplicates,
		c.OffersSkipped, c.OffersFailed, c.CompaniesAggregated, c.CompaniesFailed,
		c.RateLimited, c.Errors, runID)
	return errors.Wrap(err, "finish run")
}

func (s *Store) GetRun(ctx context.Context, runID int64) (*storage.IngestionRun, error) {
	var r storage.IngestionRun
	found, err := getContext(ctx, s.db, &r,
		`SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "get run")
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) GetLatestRunByQueryKey(ctx context.Context, queryKey string) (*storage.IngestionRun, error) {
	var r storage.IngestionRun
	found, err := getContext(ctx, s.db, &r,
		`SELECT `+runColumns+` FROM ingestion_runs WHERE query_fingerprint = ?
		 ORDER BY started_at DESC, id DESC LIMIT 1`,
		queryKey)
	if err != nil {
		return nil, errors.Wrap(err, "get latest run by query key")
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}
