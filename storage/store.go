// Package storage declares the persistent entities of the ingestion engine
// and the typed store interfaces the components consume. Implementations
// live in subpackages; every write either commits or leaves state unchanged.
package storage

import (
	"context"
)

// CompanyStore persists global companies and their recomputed metrics.
type CompanyStore interface {
	// UpsertCompany resolves c to a stable company id. The strong key is
	// the website domain, the weak key the normalized name; on a key hit
	// only null identity columns are enriched, never overwritten. Returns
	// the company id. Fails when c carries neither key.
	UpsertCompany(ctx context.Context, c *Company) (int64, error)

	// GetCompanyByID returns the company or nil when absent.
	GetCompanyByID(ctx context.Context, id int64) (*Company, error)

	// UpdateCompanyAggregation partially updates the metric columns and
	// updated_at, leaving identity and resolution untouched.
	UpdateCompanyAggregation(ctx context.Context, id int64, agg Aggregation) error

	// UpdateCompanyResolution updates only resolution and updated_at.
	// Returns false when the stored value already matched.
	UpdateCompanyResolution(ctx context.Context, id int64, r Resolution) (bool, error)

	// ListAllCompanies returns every company ordered by id.
	ListAllCompanies(ctx context.Context) ([]Company, error)

	// ListCompanyResolutions returns the current resolution of every company.
	ListCompanyResolutions(ctx context.Context) (map[int64]Resolution, error)

	// ListCompaniesNeedingATSDiscovery returns active companies that have a
	// website domain but no source row for the given provider, oldest first,
	// capped at limit.
	ListCompaniesNeedingATSDiscovery(ctx context.Context, provider string, limit int) ([]Company, error)
}

// CompanySourceStore persists provider-specific company handles.
type CompanySourceStore interface {
	// UpsertCompanySource inserts or refreshes the source row keyed by
	// (company_id, provider). The provider handle, URL and hidden flag
	// follow the latest call.
	UpsertCompanySource(ctx context.Context, s *CompanySource) (int64, error)

	// GetCompanySource returns the source row for (companyID, provider) or
	// nil when absent.
	GetCompanySource(ctx context.Context, companyID int64, provider string) (*CompanySource, error)

	// ListCompanySources returns all non-hidden sources for a provider.
	ListCompanySources(ctx context.Context, provider string) ([]CompanySource, error)
}

// OfferStore persists canonical offers and their repost bookkeeping.
type OfferStore interface {
	// UpsertOffer inserts o or, when (provider, provider_offer_id) exists,
	// overwrites the content columns with o's values (nil incoming means
	// null in store) and advances last_seen_at. The fingerprint column is
	// written on insert only. Returns the offer id.
	UpsertOffer(ctx context.Context, o *Offer) (int64, error)

	GetOfferByProviderID(ctx context.Context, provider, providerOfferID string) (*Offer, error)
	GetOfferByID(ctx context.Context, id int64) (*Offer, error)

	// UpdateOfferLastSeenAt advances last_seen_at; it never moves backwards.
	UpdateOfferLastSeenAt(ctx context.Context, id int64, lastSeenAt string) error

	// UpdateOfferCanonical repoints the canonical reference of an offer.
	UpdateOfferCanonical(ctx context.Context, id int64, canonicalID *int64) error

	// FindCanonicalOffersByFingerprint returns canonical offers of the
	// company with the given content fingerprint, most recently seen first.
	FindCanonicalOffersByFingerprint(ctx context.Context, companyID int64, fingerprint string) ([]Offer, error)

	// ListCanonicalOffersForRepost returns all canonical offers of the
	// company with the fields repost detection needs, most recently seen
	// first.
	ListCanonicalOffersForRepost(ctx context.Context, companyID int64) ([]Offer, error)

	// IncrementOfferRepostCount adds one repost sighting to the canonical
	// and advances its last_seen_at monotonically.
	IncrementOfferRepostCount(ctx context.Context, canonicalID int64, lastSeenAt string) error

	// ListCanonicalOfferStats returns the aggregation projection for the
	// company: canonical offers left-joined with their matches.
	ListCanonicalOfferStats(ctx context.Context, companyID int64) ([]CanonicalOfferStats, error)

	// DeleteOffersForCompany removes every offer of the company together
	// with attached matches. Returns the number of offers deleted.
	DeleteOffersForCompany(ctx context.Context, companyID int64) (int64, error)
}

// MatchStore persists per-offer catalog scores.
type MatchStore interface {
	UpsertMatch(ctx context.Context, m *Match) error
	GetMatchByOfferID(ctx context.Context, offerID int64) (*Match, error)
}

// RunStore records ingestion runs and their counters.
type RunStore interface {
	CreateRun(ctx context.Context, provider, queryFingerprint, startedAt string) (int64, error)
	FinishRun(ctx context.Context, runID int64, status RunStatus, finishedAt string, counters RunCounters) error
	GetRun(ctx context.Context, runID int64) (*IngestionRun, error)
	GetLatestRunByQueryKey(ctx context.Context, queryKey string) (*IngestionRun, error)
}

// QueryStateStore tracks per-query scheduler state across cycles.
type QueryStateStore interface {
	// EnsureQueryState inserts an IDLE row for the key if none exists.
	EnsureQueryState(ctx context.Context, key, client, name string) error

	MarkQueryRunning(ctx context.Context, key, at string) error
	MarkQuerySuccess(ctx context.Context, key, at string, lastProcessedDate *string) error

	// MarkQueryError records the classified code and message and increments
	// consecutive_failures atomically.
	MarkQueryError(ctx context.Context, key, at, code, message string) error

	GetQueryState(ctx context.Context, key string) (*QueryState, error)
	ListQueryStates(ctx context.Context) ([]QueryState, error)
}

// LockStore backs the global run lock. All mutations are single
// transactions; expiry reclaim happens inside AcquireLock.
type LockStore interface {
	// AcquireLock inserts the lock row for name if absent or expired.
	// Returns true when the caller now owns the lock.
	AcquireLock(ctx context.Context, name, ownerID, now, expiresAt string) (bool, error)

	// RefreshLock extends expires_at, only when ownerID holds the lock.
	RefreshLock(ctx context.Context, name, ownerID, expiresAt string) (bool, error)

	// ReleaseLock deletes the row, only when ownerID holds the lock.
	ReleaseLock(ctx context.Context, name, ownerID string) (bool, error)

	GetLock(ctx context.Context, name string) (*RunLock, error)
}

// PauseStore backs per-client ingestion back-off.
type PauseStore interface {
	SetPause(ctx context.Context, client, pausedUntil string, reason *string, updatedAt string) error
	GetPause(ctx context.Context, client string) (*ClientPause, error)
	DeletePause(ctx context.Context, client string) error
}

// FeedbackEventStore records resolution changes applied from the sheet.
type FeedbackEventStore interface {
	InsertFeedbackEvent(ctx context.Context, e *FeedbackEvent) (int64, error)
	ListFeedbackEvents(ctx context.Context, companyID int64) ([]FeedbackEvent, error)
}

// Store is the aggregate persistence surface the orchestrator opens once at
// startup and shares across components.
type Store interface {
	CompanyStore
	CompanySourceStore
	OfferStore
	MatchStore
	RunStore
	QueryStateStore
	LockStore
	PauseStore
	FeedbackEventStore

	// Migrate applies pending schema migrations in name order, each inside
	// its own transaction, recording them in schema_migrations.
	Migrate(ctx context.Context) error

	Close() error
}
