package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const queryStateColumns = `
	query_key, client, name, status, last_run_at, last_success_at,
	last_error_at, consecutive_failures, last_error_code,
	last_error_message, last_processed_date`

func (s *Store) EnsureQueryState(ctx context.Context, key, client, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_state (query_key, client, name, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(query_key) DO NOTHING`,
		key, client, name, storage.QueryStatusIdle)
	return errors.Wrap(err, "ensure query state")
}

func (s *Store) MarkQueryRunning(ctx context.Context, key, at string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE query_state SET status = ?, last_run_at = ? WHERE query_key = ?`,
		storage.QueryStatusRunning, at, key)
	return errors.Wrap(err, "mark query running")
}

func (s *Store) MarkQuerySuccess(ctx context.Context, key, at string, lastProcessedDate *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE query_state SET
			status = ?,
			last_success_at = ?,
			consecutive_failures = 0,
			last_processed_date = COALESCE(?, last_processed_date)
		WHERE query_key = ?`,
		storage.QueryStatusSuccess, at, lastProcessedDate, key)
	return errors.Wrap(err, "mark query success")
}

// MarkQueryError records the classification outcome; the failure streak is
// incremented in the same statement so concurrent readers never observe a
// half-applied update.
func (s *Store) MarkQueryError(ctx context.Context, key, at, code, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE query_state SET
			status = ?,
			last_error_at = ?,
			consecutive_failures = consecutive_failures + 1,
			last_error_code = ?,
			last_error_message = ?
		WHERE query_key = ?`,
		storage.QueryStatusError, at, code, message, key)
	return errors.Wrap(err, "mark query error")
}

func (s *Store) GetQueryState(ctx context.Context, key string) (*storage.QueryState, error) {
	var qs storage.QueryState
	found, err := getContext(ctx, s.db, &qs,
		`SELECT `+queryStateColumns+` FROM query_state WHERE query_key = ?`, key)
	if err != nil {
		return nil, errors.Wrap(err, "get query state")
	}
	if !found {
		return nil, nil
	}
	return &qs, nil
}

func (s *Store) ListQueryStates(ctx context.Context) ([]storage.QueryState, error) {
	var out []storage.QueryState
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+queryStateColumns+` FROM query_state ORDER BY query_key`)
	return out, errors.Wrap(err, "list query states")
}
