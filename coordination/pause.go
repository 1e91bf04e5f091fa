package coordination

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// DefaultPauseDuration is how long a rate-limited client sits out.
const DefaultPauseDuration = 6 * time.Hour

// Pauser manages per-client ingestion back-off rows.
type Pauser struct {
	store storage.PauseStore
	nowFn func() time.Time
}

// NewPauser returns a Pauser over the given store.
func NewPauser(store storage.PauseStore) *Pauser {
	return &Pauser{store: store, nowFn: time.Now}
}

// Pause suspends the client for d. Repeated pauses extend the same row.
func (p *Pauser) Pause(ctx context.Context, client string, d time.Duration, reason string) error {
	now := p.nowFn()
	until := storage.FormatTime(now.Add(d))
	if err := p.store.SetPause(ctx, client, until, &reason, storage.FormatTime(now)); err != nil {
		return errors.Wrapf(err, "failed to pause client %s", client)
	}
	log.WithFields(log.Fields{
		"client":       client,
		"paused_until": until,
		"reason":       reason,
	}).Warn("Client ingestion paused")
	return nil
}

// IsPaused reports whether the client is inside a pause window. An expired
// row is deleted on sight so the table self-heals.
func (p *Pauser) IsPaused(ctx context.Context, client string) (bool, error) {
	row, err := p.store.GetPause(ctx, client)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read pause of client %s", client)
	}
	if row == nil {
		return false, nil
	}
	if row.PausedUntil > storage.FormatTime(p.nowFn()) {
		return true, nil
	}
	if err := p.store.DeletePause(ctx, client); err != nil {
		return false, errors.Wrapf(err, "failed to clear expired pause of client %s", client)
	}
	log.WithField("client", client).Info("Client pause expired, cleared")
	return false, nil
}

// Clear removes any pause row for the client.
func (p *Pauser) Clear(ctx context.Context, client string) error {
	return errors.Wrapf(p.store.DeletePause(ctx, client), "failed to clear pause of client %s", client)
}
