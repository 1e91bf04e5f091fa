package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const offerColumns = `
	id, provider, provider_offer_id, url, company_id, title, description,
	requirements, published_at, source_updated_at, canonical_offer_id,
	repost_count, content_fingerprint, last_seen_at, created_at, updated_at`

// UpsertOffer inserts o or overwrites the content columns of the existing
// (provider, provider_offer_id) row. Overwrite means exactly that: a nil
// incoming value nulls the stored column. The fingerprint is only written
// on insert; last_seen_at never moves backwards.
func (s *Store) UpsertOffer(ctx context.Context, o *storage.Offer) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existingID int64
		found, err := getContext(ctx, tx, &existingID,
			`SELECT id FROM offers WHERE provider = ? AND provider_offer_id = ?`,
			o.Provider, o.ProviderOfferID)
		if err != nil {
			return errors.Wrap(err, "select offer by provider id")
		}

		if found {
			id = existingID
			_, err = tx.ExecContext(ctx, `
				UPDATE offers SET
					url = ?,
					company_id = ?,
					title = ?,
					description = ?,
					requirements = ?,
					published_at = ?,
					source_updated_at = ?,
					last_seen_at = MAX(last_seen_at, ?),
					updated_at = ?
				WHERE id = ?`,
				o.URL, o.CompanyID, o.Title, o.Description, o.Requirements,
				o.PublishedAt, o.SourceUpdatedAt, o.LastSeenAt, s.now(), existingID)
			return errors.Wrap(err, "update offer")
		}

		now := s.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO offers (provider, provider_offer_id, url, company_id, title,
				description, requirements, published_at, source_updated_at,
				canonical_offer_id, repost_count, content_fingerprint,
				last_seen_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			o.Provider, o.ProviderOfferID, o.URL, o.CompanyID, o.Title,
			o.Description, o.Requirements, o.PublishedAt, o.SourceUpdatedAt,
			o.CanonicalOfferID, o.ContentFingerprint, o.LastSeenAt, now, now)
		if err != nil {
			return errors.Wrap(err, "insert offer")
		}
		id, err = res.LastInsertId()
		return errors.Wrap(err, "offer insert id")
	})
	return id, err
}

func (s *Store) GetOfferByProviderID(ctx context.Context, provider, providerOfferID string) (*storage.Offer, error) {
	var o storage.Offer
	found, err := getContext(ctx, s.db, &o,
		`SELECT `+offerColumns+` FROM offers WHERE provider = ? AND provider_offer_id = ?`,
		provider, providerOfferID)
	if err != nil {
		return nil, errors.Wrap(err, "get offer by provider id")
	}
	if !found {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) GetOfferByID(ctx context.Context, id int64) (*storage.Offer, error) {
	var o storage.Offer
	found, err := getContext(ctx, s.db, &o,
		`SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(err, "get offer by id")
	}
	if !found {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) UpdateOfferLastSeenAt(ctx context.Context, id int64, lastSeenAt string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE offers SET last_seen_at = MAX(last_seen_at, ?), updated_at = ? WHERE id = ?`,
		lastSeenAt, s.now(), id)
	return errors.Wrap(err, "update offer last_seen_at")
}

func (s *Store) UpdateOfferCanonical(ctx context.Context, id int64, canonicalID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE offers SET canonical_offer_id = ?, updated_at = ? WHERE id = ?`,
		canonicalID, s.now(), id)
	return errors.Wrap(err, "update offer canonical")
}

func (s *Store) FindCanonicalOffersByFingerprint(ctx context.Context, companyID int64, fingerprint string) ([]storage.Offer, error) {
	var out []storage.Offer
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+offerColumns+` FROM offers
		 WHERE company_id = ? AND canonical_offer_id IS NULL AND content_fingerprint = ?
		 ORDER BY last_seen_at DESC, id`,
		companyID, fingerprint)
	return out, errors.Wrap(err, "find canonical offers by fingerprint")
}

func (s *Store) ListCanonicalOffersForRepost(ctx context.Context, companyID int64) ([]storage.Offer, error) {
	var out []storage.Offer
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+offerColumns+` FROM offers
		 WHERE company_id = ? AND canonical_offer_id IS NULL
		 ORDER BY last_seen_at DESC, id`,
		companyID)
	return out, errors.Wrap(err, "list canonical offers for repost")
}

// IncrementOfferRepostCount books one repost sighting on the canonical row.
func (s *Store) IncrementOfferRepostCount(ctx context.Context, canonicalID int64, lastSeenAt string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers SET
			repost_count = repost_count + 1,
			last_seen_at = MAX(last_seen_at, ?),
			updated_at = ?
		WHERE id = ? AND canonical_offer_id IS NULL`,
		lastSeenAt, s.now(), canonicalID)
	if err != nil {
		return errors.Wrap(err, "increment repost count")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "repost rows affected")
	}
	if n == 0 {
		return errors.Errorf("offer %d is not a canonical offer", canonicalID)
	}
	return nil
}

func (s *Store) ListCanonicalOfferStats(ctx context.Context, companyID int64) ([]storage.CanonicalOfferStats, error) {
	var out []storage.CanonicalOfferStats
	err := s.db.SelectContext(ctx, &out, `
		SELECT o.id, o.repost_count, o.published_at, m.score, m.category_id
		FROM offers o
		LEFT JOIN matches m ON m.offer_id = o.id
		WHERE o.company_id = ? AND o.canonical_offer_id IS NULL
		ORDER BY o.id`,
		companyID)
	return out, errors.Wrap(err, "list canonical offer stats")
}

// DeleteOffersForCompany removes the company's offers; matches go with them
// via the FK cascade. Returns the number of offer rows deleted.
func (s *Store) DeleteOffersForCompany(ctx context.Context, companyID int64) (int64, error) {
	var deleted int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM offers WHERE company_id = ?`, companyID)
		if err != nil {
			return errors.Wrap(err, "delete offers for company")
		}
		deleted, err = res.RowsAffected()
		return errors.Wrap(err, "deleted rows affected")
	})
	return deleted, err
}
