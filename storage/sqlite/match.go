package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// UpsertMatch writes the score row for a canonical offer, replacing any
// previous computation.
func (s *Store) UpsertMatch(ctx context.Context, m *storage.Match) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (offer_id, score, category_id, detail, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET
			score = excluded.score,
			category_id = excluded.category_id,
			detail = excluded.detail,
			computed_at = excluded.computed_at`,
		m.OfferID, m.Score, m.CategoryID, m.Detail, m.ComputedAt)
	return errors.Wrap(err, "upsert match")
}

func (s *Store) GetMatchByOfferID(ctx context.Context, offerID int64) (*storage.Match, error) {
	var m storage.Match
	found, err := getContext(ctx, s.db, &m,
		`SELECT offer_id, score, category_id, detail, computed_at FROM matches WHERE offer_id = ?`,
		offerID)
	if err != nil {
		return nil, errors.Wrap(err, "get match by offer id")
	}
	if !found {
		return nil, nil
	}
	return &m, nil
}
