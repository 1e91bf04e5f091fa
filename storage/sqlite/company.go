package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const companyColumns = `
	id, name, raw_name, normalized_name, website_url, website_domain,
	max_score, offer_count, unique_offer_count, strong_offer_count,
	avg_strong_score, top_category_id, top_offer_id, category_max_scores,
	last_strong_at, resolution, created_at, updated_at`

// UpsertCompany implements the identity upsert: domain-first strong key,
// normalized-name weak key, enrich-only-null on hit, insert on miss. The
// whole decision runs in one transaction. Repeating the same input is a
// no-op beyond the first call.
func (s *Store) UpsertCompany(ctx context.Context, c *storage.Company) (int64, error) {
	if c.WebsiteDomain == nil && c.NormalizedName == nil {
		return 0, errors.New("company carries neither website domain nor normalized name")
	}

	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing storage.Company
		var found bool
		var err error
		if c.WebsiteDomain != nil {
			found, err = getContext(ctx, tx, &existing,
				`SELECT `+companyColumns+` FROM companies WHERE website_domain = ? ORDER BY id LIMIT 1`,
				*c.WebsiteDomain)
		} else {
			found, err = getContext(ctx, tx, &existing,
				`SELECT `+companyColumns+` FROM companies WHERE normalized_name = ? ORDER BY id LIMIT 1`,
				*c.NormalizedName)
		}
		if err != nil {
			return errors.Wrap(err, "select company by identity key")
		}

		if found {
			id = existing.ID
			if !companyNeedsEnrichment(&existing, c) {
				return nil
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE companies SET
					name = COALESCE(name, ?),
					raw_name = COALESCE(raw_name, ?),
					normalized_name = COALESCE(normalized_name, ?),
					website_url = COALESCE(website_url, ?),
					website_domain = COALESCE(website_domain, ?),
					updated_at = ?
				WHERE id = ?`,
				c.Name, c.RawName, c.NormalizedName, c.WebsiteURL, c.WebsiteDomain,
				s.now(), existing.ID)
			return errors.Wrap(err, "enrich company identity")
		}

		now := s.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO companies (name, raw_name, normalized_name, website_url, website_domain,
				resolution, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.RawName, c.NormalizedName, c.WebsiteURL, c.WebsiteDomain,
			storage.ResolutionPending, now, now)
		if err != nil {
			return errors.Wrap(err, "insert company")
		}
		id, err = res.LastInsertId()
		return errors.Wrap(err, "company insert id")
	})
	return id, err
}

// companyNeedsEnrichment reports whether c adds knowledge to a null column
// of existing. Keeps repeated upserts from churning updated_at.
func companyNeedsEnrichment(existing, c *storage.Company) bool {
	adds := func(have, incoming *string) bool { return have == nil && incoming != nil }
	return adds(existing.Name, c.Name) ||
		adds(existing.RawName, c.RawName) ||
		adds(existing.NormalizedName, c.NormalizedName) ||
		adds(existing.WebsiteURL, c.WebsiteURL) ||
		adds(existing.WebsiteDomain, c.WebsiteDomain)
}

func (s *Store) GetCompanyByID(ctx context.Context, id int64) (*storage.Company, error) {
	var c storage.Company
	found, err := getContext(ctx, s.db, &c,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(err, "get company by id")
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// UpdateCompanyAggregation rewrites only the metric columns and updated_at.
func (s *Store) UpdateCompanyAggregation(ctx context.Context, id int64, agg storage.Aggregation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE companies SET
			max_score = ?,
			offer_count = ?,
			unique_offer_count = ?,
			strong_offer_count = ?,
			avg_strong_score = ?,
			top_category_id = ?,
			top_offer_id = ?,
			category_max_scores = ?,
			last_strong_at = ?,
			updated_at = ?
		WHERE id = ?`,
		agg.MaxScore, agg.OfferCount, agg.UniqueOfferCount, agg.StrongOfferCount,
		agg.AvgStrongScore, agg.TopCategoryID, agg.TopOfferID, agg.CategoryMaxScores,
		agg.LastStrongAt, s.now(), id)
	return errors.Wrap(err, "update company aggregation")
}

// UpdateCompanyResolution touches only resolution and updated_at. Returns
// false when the stored resolution already equals r.
func (s *Store) UpdateCompanyResolution(ctx context.Context, id int64, r storage.Resolution) (bool, error) {
	if !r.Valid() {
		return false, errors.Errorf("invalid resolution %q", r)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET resolution = ?, updated_at = ? WHERE id = ? AND resolution != ?`,
		r, s.now(), id, r)
	if err != nil {
		return false, errors.Wrap(err, "update company resolution")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "resolution rows affected")
	}
	return n > 0, nil
}

func (s *Store) ListAllCompanies(ctx context.Context) ([]storage.Company, error) {
	var out []storage.Company
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+companyColumns+` FROM companies ORDER BY id`)
	return out, errors.Wrap(err, "list companies")
}

func (s *Store) ListCompanyResolutions(ctx context.Context) (map[int64]storage.Resolution, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT id, resolution FROM companies`)
	if err != nil {
		return nil, errors.Wrap(err, "list company resolutions")
	}
	defer rows.Close()

	out := make(map[int64]storage.Resolution)
	for rows.Next() {
		var id int64
		var r storage.Resolution
		if err := rows.Scan(&id, &r); err != nil {
			return nil, errors.Wrap(err, "scan company resolution")
		}
		out[id] = r
	}
	return out, errors.Wrap(rows.Err(), "iterate company resolutions")
}

// ListCompaniesNeedingATSDiscovery returns active companies with a website
// domain and no source row for provider, oldest first.
func (s *Store) ListCompaniesNeedingATSDiscovery(ctx context.Context, provider string, limit int) ([]storage.Company, error) {
	var out []storage.Company
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+companyColumns+` FROM companies c
		WHERE c.website_domain IS NOT NULL
		  AND c.resolution NOT IN (?, ?, ?)
		  AND NOT EXISTS (
			SELECT 1 FROM company_sources cs
			WHERE cs.company_id = c.id AND cs.provider = ?
		  )
		ORDER BY c.id
		LIMIT ?`,
		storage.ResolutionAlreadyRevolut, storage.ResolutionAccepted, storage.ResolutionRejected,
		provider, limit)
	return out, errors.Wrap(err, "list companies needing discovery")
}

const sourceColumns = `id, company_id, provider, provider_company_id, provider_url, hidden, created_at, updated_at`

// UpsertCompanySource keys on (company_id, provider); the row's provider
// handle, URL and hidden flag follow the latest call.
func (s *Store) UpsertCompanySource(ctx context.Context, src *storage.CompanySource) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing storage.CompanySource
		found, err := getContext(ctx, tx, &existing,
			`SELECT `+sourceColumns+` FROM company_sources WHERE company_id = ? AND provider = ? LIMIT 1`,
			src.CompanyID, src.Provider)
		if err != nil {
			return errors.Wrap(err, "select company source")
		}

		if found {
			id = existing.ID
			_, err = tx.ExecContext(ctx, `
				UPDATE company_sources SET
					provider_company_id = ?,
					provider_url = ?,
					hidden = ?,
					updated_at = ?
				WHERE id = ?`,
				src.ProviderCompanyID, src.ProviderURL, src.Hidden, s.now(), existing.ID)
			return errors.Wrap(err, "update company source")
		}

		now := s.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO company_sources (company_id, provider, provider_company_id, provider_url, hidden, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			src.CompanyID, src.Provider, src.ProviderCompanyID, src.ProviderURL, src.Hidden, now, now)
		if err != nil {
			return errors.Wrap(err, "insert company source")
		}
		id, err = res.LastInsertId()
		return errors.Wrap(err, "company source insert id")
	})
	return id, err
}

func (s *Store) GetCompanySource(ctx context.Context, companyID int64, provider string) (*storage.CompanySource, error) {
	var src storage.CompanySource
	found, err := getContext(ctx, s.db, &src,
		`SELECT `+sourceColumns+` FROM company_sources WHERE company_id = ? AND provider = ? LIMIT 1`,
		companyID, provider)
	if err != nil {
		return nil, errors.Wrap(err, "get company source")
	}
	if !found {
		return nil, nil
	}
	return &src, nil
}

func (s *Store) ListCompanySources(ctx context.Context, provider string) ([]storage.CompanySource, error) {
	var out []storage.CompanySource
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+sourceColumns+` FROM company_sources WHERE provider = ? AND hidden = 0 ORDER BY company_id`,
		provider)
	return out, errors.Wrap(err, "list company sources")
}
