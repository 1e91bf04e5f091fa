package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

func (s *Store) InsertFeedbackEvent(ctx context.Context, e *storage.FeedbackEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO company_feedback_events (company_id, from_resolution, to_resolution, category, offers_deleted, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.CompanyID, e.FromResolution, e.ToResolution, e.Category, e.OffersDeleted, e.AppliedAt)
	if err != nil {
		return 0, errors.Wrap(err, "insert feedback event")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "feedback event insert id")
}

func (s *Store) ListFeedbackEvents(ctx context.Context, companyID int64) ([]storage.FeedbackEvent, error) {
	var out []storage.FeedbackEvent
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, company_id, from_resolution, to_resolution, category, offers_deleted, applied_at
		FROM company_feedback_events
		WHERE company_id = ?
		ORDER BY applied_at, id`,
		companyID)
	return out, errors.Wrap(err, "list feedback events")
}
