// Package provider defines the canonical offer payload every client maps
// its provider-specific responses onto, and the interfaces the ingestion
// core consumes. Clients live in subpackages; the core never sees a raw
// provider response.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrTenantNotFound is returned by ATS clients when the tenant slug does
// not host a public board. Callers compare with errors.Cause.
var ErrTenantNotFound = errors.New("tenant board not found")

// Provider tags. Tags double as the client identifier for pausing.
const (
	InfoJobs  = "infojobs"
	Factorial = "factorial"
	Personio  = "personio"
)

// IsATS reports whether the tag names a hosted-ATS back-end. ATS sources
// must deliver detail rows, so offers without a description are rejected
// at persistence time.
func IsATS(provider string) bool {
	return provider == Factorial || provider == Personio
}

// Ref identifies an offer at its provider.
type Ref struct {
	Provider string
	ID       string
	URL      string
}

// CompanyPayload is the identity evidence embedded in an offer.
type CompanyPayload struct {
	Name           *string
	NormalizedName *string
	WebsiteURL     *string
	WebsiteDomain  *string
}

// Empty reports whether the payload carries no identity evidence at all.
func (c CompanyPayload) Empty() bool {
	return c.Name == nil && c.NormalizedName == nil && c.WebsiteURL == nil && c.WebsiteDomain == nil
}

// OfferPayload is the canonical offer shape shared by all providers.
// Optional fields are nil when the provider did not deliver them; the
// persistence layer propagates nil as null (overwrite semantics).
type OfferPayload struct {
	Ref                 Ref
	Title               *string
	Company             CompanyPayload
	Description         *string
	MinRequirements     *string
	DesiredRequirements *string
	RequirementsSnippet *string
	PublishedAt         *time.Time
	UpdatedAt           *time.Time
	CreatedAt           *time.Time
	ApplicationsCount   *int
	Metadata            map[string]string
}

// HasDescription reports whether the offer carries a non-blank description.
func (o OfferPayload) HasDescription() bool {
	return o.Description != nil && strings.TrimSpace(*o.Description) != ""
}

// EffectiveSeenAt is the sighting timestamp persisted with the offer: the
// provider's update time, else its publish time, else now.
func (o OfferPayload) EffectiveSeenAt(now time.Time) time.Time {
	if o.UpdatedAt != nil {
		return *o.UpdatedAt
	}
	if o.PublishedAt != nil {
		return *o.PublishedAt
	}
	return now.UTC()
}

// Requirements flattens the requirement fields into the single stored
// column: detailed minimum/desired blocks joined when present, otherwise
// the marketplace snippet.
func (o OfferPayload) Requirements() *string {
	var parts []string
	if o.MinRequirements != nil && strings.TrimSpace(*o.MinRequirements) != "" {
		parts = append(parts, strings.TrimSpace(*o.MinRequirements))
	}
	if o.DesiredRequirements != nil && strings.TrimSpace(*o.DesiredRequirements) != "" {
		parts = append(parts, strings.TrimSpace(*o.DesiredRequirements))
	}
	if len(parts) > 0 {
		joined := strings.Join(parts, "\n")
		return &joined
	}
	if o.RequirementsSnippet != nil && strings.TrimSpace(*o.RequirementsSnippet) != "" {
		s := strings.TrimSpace(*o.RequirementsSnippet)
		return &s
	}
	return nil
}

// SearchParams parameterizes one marketplace search query.
type SearchParams struct {
	Query      string
	Province   string
	MaxResults int
}

// Meta carries marketplace paging information.
type Meta struct {
	Page      int
	PageCount int
	Total     int
	PagesRead int
}

// Batch is one marketplace search result set.
type Batch struct {
	Offers []OfferPayload
	Meta   Meta
}

// Marketplace is a general search provider (paged keyword search).
type Marketplace interface {
	SearchOffers(ctx context.Context, params SearchParams) (*Batch, error)
}

// ATS is a hosted applicant-tracking back-end exposing a public board per
// tenant.
type ATS interface {
	// ListOffersForTenant returns the tenant's published offers, list rows
	// only (no descriptions).
	ListOffersForTenant(ctx context.Context, tenantKey string) ([]OfferPayload, error)

	// HydrateOfferDetails fills descriptions and requirement fields for
	// the given list rows.
	HydrateOfferDetails(ctx context.Context, tenantKey string, offers []OfferPayload) ([]OfferPayload, error)

	// ProbeTenant reports whether the tenant slug hosts a board.
	ProbeTenant(ctx context.Context, tenantKey string) (bool, error)
}
