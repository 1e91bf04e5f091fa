package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// AcquireLock takes the named lock when the row is absent or expired. The
// expired-holder reclaim (delete then insert) runs in one transaction so a
// crashed owner can never wedge the system past the TTL.
func (s *Store) AcquireLock(ctx context.Context, name, ownerID, now, expiresAt string) (bool, error) {
	var acquired bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing storage.RunLock
		found, err := getContext(ctx, tx, &existing,
			`SELECT lock_name, owner_id, acquired_at, expires_at FROM run_lock WHERE lock_name = ?`,
			name)
		if err != nil {
			return errors.Wrap(err, "select run lock")
		}

		if found {
			if existing.ExpiresAt > now {
				acquired = false
				return nil
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM run_lock WHERE lock_name = ?`, name); err != nil {
				return errors.Wrap(err, "reclaim expired lock")
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_lock (lock_name, owner_id, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)`,
			name, ownerID, now, expiresAt); err != nil {
			return errors.Wrap(err, "insert run lock")
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *Store) RefreshLock(ctx context.Context, name, ownerID, expiresAt string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_lock SET expires_at = ? WHERE lock_name = ? AND owner_id = ?`,
		expiresAt, name, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "refresh run lock")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "refresh rows affected")
}

func (s *Store) ReleaseLock(ctx context.Context, name, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM run_lock WHERE lock_name = ? AND owner_id = ?`,
		name, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "release run lock")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "release rows affected")
}

func (s *Store) GetLock(ctx context.Context, name string) (*storage.RunLock, error) {
	var l storage.RunLock
	found, err := getContext(ctx, s.db, &l,
		`SELECT lock_name, owner_id, acquired_at, expires_at FROM run_lock WHERE lock_name = ?`,
		name)
	if err != nil {
		return nil, errors.Wrap(err, "get run lock")
	}
	if !found {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) SetPause(ctx context.Context, client, pausedUntil string, reason *string, updatedAt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_pause (client, paused_until, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client) DO UPDATE SET
			paused_until = excluded.paused_until,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		client, pausedUntil, reason, updatedAt)
	return errors.Wrap(err, "set client pause")
}

func (s *Store) GetPause(ctx context.Context, client string) (*storage.ClientPause, error) {
	var p storage.ClientPause
	found, err := getContext(ctx, s.db, &p,
		`SELECT client, paused_until, reason, updated_at FROM client_pause WHERE client = ?`,
		client)
	if err != nil {
		return nil, errors.Wrap(err, "get client pause")
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) DeletePause(ctx context.Context, client string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_pause WHERE client = ?`, client)
	return errors.Wrap(err, "delete client pause")
}
