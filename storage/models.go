package storage

import (
	"time"
)

// Resolution is the lifecycle state a human assigns to a company on the
// curated sheet. Resolved companies are excluded from future ingestion.
type Resolution string

const (
	ResolutionPending        Resolution = "PENDING"
	ResolutionInProgress     Resolution = "IN_PROGRESS"
	ResolutionHighInterest   Resolution = "HIGH_INTEREST"
	ResolutionAlreadyRevolut Resolution = "ALREADY_REVOLUT"
	ResolutionAccepted       Resolution = "ACCEPTED"
	ResolutionRejected       Resolution = "REJECTED"
)

// AllResolutions lists every value the resolution column accepts, in the
// order the sheet validation rule presents them.
func AllResolutions() []Resolution {
	return []Resolution{
		ResolutionPending,
		ResolutionInProgress,
		ResolutionHighInterest,
		ResolutionAlreadyRevolut,
		ResolutionAccepted,
		ResolutionRejected,
	}
}

// Valid reports whether r is one of the enumerated resolutions.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionPending, ResolutionInProgress, ResolutionHighInterest,
		ResolutionAlreadyRevolut, ResolutionAccepted, ResolutionRejected:
		return true
	}
	return false
}

// Resolved reports whether r terminates the company lifecycle. Offers of
// resolved companies are deleted and future ingestion is suppressed.
func (r Resolution) Resolved() bool {
	switch r {
	case ResolutionAlreadyRevolut, ResolutionAccepted, ResolutionRejected:
		return true
	}
	return false
}

// Company is a globally deduplicated employer. Identity requires at least
// one of WebsiteDomain or NormalizedName; aggregation fields are recomputed
// from the company's canonical offers.
type Company struct {
	ID                int64      `db:"id"`
	Name              *string    `db:"name"`
	RawName           *string    `db:"raw_name"`
	NormalizedName    *string    `db:"normalized_name"`
	WebsiteURL        *string    `db:"website_url"`
	WebsiteDomain     *string    `db:"website_domain"`
	MaxScore          int        `db:"max_score"`
	OfferCount        int        `db:"offer_count"`
	UniqueOfferCount  int        `db:"unique_offer_count"`
	StrongOfferCount  int        `db:"strong_offer_count"`
	AvgStrongScore    *float64   `db:"avg_strong_score"`
	TopCategoryID     *int64     `db:"top_category_id"`
	TopOfferID        *int64     `db:"top_offer_id"`
	CategoryMaxScores *string    `db:"category_max_scores"`
	LastStrongAt      *string    `db:"last_strong_at"`
	Resolution        Resolution `db:"resolution"`
	CreatedAt         string     `db:"created_at"`
	UpdatedAt         string     `db:"updated_at"`
}

// Aggregation is the recomputable metric slice of a company row. Persisting
// it must leave identity and resolution columns untouched.
type Aggregation struct {
	MaxScore          int
	OfferCount        int
	UniqueOfferCount  int
	StrongOfferCount  int
	AvgStrongScore    *float64
	TopCategoryID     *int64
	TopOfferID        *int64
	CategoryMaxScores *string
	LastStrongAt      *string
}

// CompanySource is a provider-specific handle for a company, such as the
// tenant slug of a hosted ATS board.
type CompanySource struct {
	ID                int64   `db:"id"`
	CompanyID         int64   `db:"company_id"`
	Provider          string  `db:"provider"`
	ProviderCompanyID *string `db:"provider_company_id"`
	ProviderURL       *string `db:"provider_url"`
	Hidden            bool    `db:"hidden"`
	CreatedAt         string  `db:"created_at"`
	UpdatedAt         string  `db:"updated_at"`
}

// Offer is a canonical job offer. Rows are unique by
// (Provider, ProviderOfferID); content duplicates are never inserted, only
// counted on the canonical via RepostCount.
type Offer struct {
	ID                 int64   `db:"id"`
	Provider           string  `db:"provider"`
	ProviderOfferID    string  `db:"provider_offer_id"`
	URL                *string `db:"url"`
	CompanyID          int64   `db:"company_id"`
	Title              *string `db:"title"`
	Description        *string `db:"description"`
	Requirements       *string `db:"requirements"`
	PublishedAt        *string `db:"published_at"`
	SourceUpdatedAt    *string `db:"source_updated_at"`
	CanonicalOfferID   *int64  `db:"canonical_offer_id"`
	RepostCount        int     `db:"repost_count"`
	ContentFingerprint *string `db:"content_fingerprint"`
	LastSeenAt         string  `db:"last_seen_at"`
	CreatedAt          string  `db:"created_at"`
	UpdatedAt          string  `db:"updated_at"`
}

// Canonical reports whether the offer row represents unique content.
func (o *Offer) Canonical() bool { return o.CanonicalOfferID == nil }

// Match is the catalog score attached to a canonical offer. Its lifetime is
// tied to the offer row.
type Match struct {
	OfferID    int64  `db:"offer_id"`
	Score      int    `db:"score"`
	CategoryID *int64 `db:"category_id"`
	Detail     string `db:"detail"`
	ComputedAt string `db:"computed_at"`
}

// CanonicalOfferStats is the projection the aggregator consumes: one row per
// canonical offer of a company, left-joined with its match.
type CanonicalOfferStats struct {
	OfferID     int64   `db:"id"`
	RepostCount int     `db:"repost_count"`
	PublishedAt *string `db:"published_at"`
	Score       *int    `db:"score"`
	CategoryID  *int64  `db:"category_id"`
}

// RunStatus is the terminal state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// RunCounters is the counter snapshot persisted with a finished run.
type RunCounters struct {
	PagesFetched        int `db:"pages_fetched"`
	OffersFetched       int `db:"offers_fetched"`
	OffersUpserted      int `db:"offers_upserted"`
	OffersDuplicates    int `db:"offers_duplicates"`
	OffersSkipped       int `db:"offers_skipped"`
	OffersFailed        int `db:"offers_failed"`
	CompaniesAggregated int `db:"companies_aggregated"`
	CompaniesFailed     int `db:"companies_failed"`
	RateLimited         int `db:"rate_limited"`
	Errors              int `db:"errors"`
}

// IngestionRun records one execution of one registered query.
type IngestionRun struct {
	ID               int64     `db:"id"`
	Provider         string    `db:"provider"`
	QueryFingerprint string    `db:"query_fingerprint"`
	StartedAt        string    `db:"started_at"`
	FinishedAt       *string   `db:"finished_at"`
	Status           RunStatus `db:"status"`
	RunCounters
}

// QueryStatus is the scheduler-visible state of a registered query.
type QueryStatus string

const (
	QueryStatusIdle    QueryStatus = "IDLE"
	QueryStatusRunning QueryStatus = "RUNNING"
	QueryStatusSuccess QueryStatus = "SUCCESS"
	QueryStatusError   QueryStatus = "ERROR"
)

// QueryState tracks per-query scheduling history across cycles.
type QueryState struct {
	QueryKey            string      `db:"query_key"`
	Client              string      `db:"client"`
	Name                string      `db:"name"`
	Status              QueryStatus `db:"status"`
	LastRunAt           *string     `db:"last_run_at"`
	LastSuccessAt       *string     `db:"last_success_at"`
	LastErrorAt         *string     `db:"last_error_at"`
	ConsecutiveFailures int         `db:"consecutive_failures"`
	LastErrorCode       *string     `db:"last_error_code"`
	LastErrorMessage    *string     `db:"last_error_message"`
	LastProcessedDate   *string     `db:"last_processed_date"`
}

// RunLock is the single-row global exclusion lock.
type RunLock struct {
	LockName   string `db:"lock_name"`
	OwnerID    string `db:"owner_id"`
	AcquiredAt string `db:"acquired_at"`
	ExpiresAt  string `db:"expires_at"`
}

// ClientPause backs per-client ingestion back-off with auto-expiry.
type ClientPause struct {
	Client      string  `db:"client"`
	PausedUntil string  `db:"paused_until"`
	Reason      *string `db:"reason"`
	UpdatedAt   string  `db:"updated_at"`
}

// FeedbackEvent is the audit row written for every resolution change applied
// from the curated sheet.
type FeedbackEvent struct {
	ID             int64   `db:"id"`
	CompanyID      int64   `db:"company_id"`
	FromResolution *string `db:"from_resolution"`
	ToResolution   string  `db:"to_resolution"`
	Category       string  `db:"category"`
	OffersDeleted  int     `db:"offers_deleted"`
	AppliedAt      string  `db:"applied_at"`
}

// FormatTime renders t for storage: UTC, RFC 3339, second precision. All
// persisted timestamps go through this so comparisons stay byte-stable.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseTime is the inverse of FormatTime. It returns the zero time for
// unparseable input; stored values are always well formed.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
