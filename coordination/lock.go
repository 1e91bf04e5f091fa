// Package coordination implements cross-process exclusion for ingestion
// cycles: a TTL-guarded global run lock and per-client pause windows. The
// two store tables are the single source of truth; there are no in-memory
// locks.
package coordination

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const (
	// LockName is the single row key every ingestion process contends on.
	LockName = "global_ingest"

	// DefaultLockTTL bounds how long a crashed holder can wedge the system.
	DefaultLockTTL = 30 * time.Minute
)

// RunLock is one process's handle on the global ingestion lock. Each
// handle carries a fresh owner id; a handle is acquired for at most one
// cycle and released (or left to expire) afterwards.
type RunLock struct {
	store   storage.LockStore
	name    string
	ownerID string
	ttl     time.Duration
	nowFn   func() time.Time
}

// NewRunLock returns an unacquired handle with a generated owner id.
func NewRunLock(store storage.LockStore, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{
		store:   store,
		name:    LockName,
		ownerID: uuid.NewString(),
		ttl:     ttl,
		nowFn:   time.Now,
	}
}

// OwnerID identifies this handle in the lock table.
func (l *RunLock) OwnerID() string { return l.ownerID }

// Acquire takes the lock if it is free or expired. Returns false when a
// live holder exists.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	now := l.nowFn()
	ok, err := l.store.AcquireLock(ctx, l.name, l.ownerID,
		storage.FormatTime(now), storage.FormatTime(now.Add(l.ttl)))
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire run lock")
	}
	if ok {
		log.WithField("owner_id", l.ownerID).Debug("Acquired global run lock")
	} else {
		log.WithField("owner_id", l.ownerID).Info("Global run lock held elsewhere")
	}
	return ok, nil
}

// Refresh extends the TTL. Returns false when this handle no longer owns
// the lock.
func (l *RunLock) Refresh(ctx context.Context) (bool, error) {
	ok, err := l.store.RefreshLock(ctx, l.name, l.ownerID,
		storage.FormatTime(l.nowFn().Add(l.ttl)))
	if err != nil {
		return false, errors.Wrap(err, "failed to refresh run lock")
	}
	return ok, nil
}

// Release drops the lock. Returns false when this handle did not own it.
func (l *RunLock) Release(ctx context.Context) (bool, error) {
	ok, err := l.store.ReleaseLock(ctx, l.name, l.ownerID)
	if err != nil {
		return false, errors.Wrap(err, "failed to release run lock")
	}
	if !ok {
		log.WithField("owner_id", l.ownerID).Warn("Released a run lock this owner did not hold")
	}
	return ok, nil
}
