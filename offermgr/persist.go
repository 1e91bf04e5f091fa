// Package offermgr persists canonical provider payloads: it resolves the
// company, gates on resolution, deduplicates reposts, and writes offers
// and matches. Per-record errors never escape as exceptions; every call
// returns a tagged result the batch pipeline turns into counters.
package offermgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/dedup"
	"github.com/banasa44/buiss-scrapper-sub000/identity"
	"github.com/banasa44/buiss-scrapper-sub000/provider"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// PersistStatus tags the outcome of persisting one offer payload.
type PersistStatus string

const (
	StatusOK                    PersistStatus = "ok"
	StatusRepostDuplicate       PersistStatus = "repost_duplicate"
	StatusMissingDescription    PersistStatus = "missing_description"
	StatusCompanyUnidentifiable PersistStatus = "company_unidentifiable"
	StatusCompanyResolved       PersistStatus = "company_resolved"
	StatusDBError               PersistStatus = "db_error"
)

// BatchItem is one payload to persist. CompanyID is set on the ATS path,
// where the tenant was already bound to a company via its source row;
// marketplace payloads leave it nil and resolve through the embedded
// company evidence.
type BatchItem struct {
	Payload   provider.OfferPayload
	CompanyID *int64
}

// PersistResult is the tagged outcome of one PersistOffer call.
//
// CompanyID is set whenever a company was touched, including on db_error
// after a successful company upsert: the caller must still aggregate it.
type PersistResult struct {
	Status      PersistStatus
	OfferID     int64
	CanonicalID int64
	CompanyID   int64

	// Canonical reports whether the persisted row holds unique content;
	// only canonical rows get match rows.
	Canonical bool

	DedupReason dedup.Reason
	Similarity  float64
	Err         error
}

// Persister is the single entry point for offer persistence.
type Persister interface {
	// PersistOffer never returns an error; failures come back tagged as
	// db_error results.
	PersistOffer(ctx context.Context, item BatchItem) PersistResult
}

// NewPersister returns a Persister over the given stores.
func NewPersister(
	companies storage.CompanyStore,
	offers storage.OfferStore,
	resolver identity.Resolver,
	metrics *Metrics,
) Persister {
	return &persister{
		companies: companies,
		offers:    offers,
		resolver:  resolver,
		metrics:   metrics,
		nowFn:     time.Now,
	}
}

type persister struct {
	companies storage.CompanyStore
	offers    storage.OfferStore
	resolver  identity.Resolver
	metrics   *Metrics
	nowFn     func() time.Time
}

func (p *persister) PersistOffer(ctx context.Context, item BatchItem) PersistResult {
	payload := item.Payload
	fields := log.Fields{
		"provider":          payload.Ref.Provider,
		"provider_offer_id": payload.Ref.ID,
	}

	if provider.IsATS(payload.Ref.Provider) && !payload.HasDescription() {
		p.metrics.SkippedMissingDescription.Inc(1)
		log.WithFields(fields).Debug("Skipping ATS offer without description")
		return PersistResult{Status: StatusMissingDescription}
	}

	var companyID int64
	if item.CompanyID != nil {
		companyID = *item.CompanyID
	} else {
		id, err := p.resolver.Resolve(ctx, payload.Company)
		if err != nil {
			if errors.Cause(err) == identity.ErrUnidentifiable {
				p.metrics.SkippedUnidentifiable.Inc(1)
				log.WithFields(fields).Debug("Skipping offer with unidentifiable company")
				return PersistResult{Status: StatusCompanyUnidentifiable}
			}
			return p.dbError(fields, 0, err)
		}
		companyID = id
	}
	fields["company_id"] = companyID

	company, err := p.companies.GetCompanyByID(ctx, companyID)
	if err != nil {
		return p.dbError(fields, companyID, err)
	}
	if company == nil {
		return p.dbError(fields, companyID, errors.Errorf("company %d not found", companyID))
	}
	if company.Resolution.Resolved() {
		p.metrics.SkippedResolved.Inc(1)
		log.WithFields(fields).WithField("resolution", company.Resolution).
			Debug("Skipping offer of resolved company")
		return PersistResult{Status: StatusCompanyResolved, CompanyID: companyID}
	}

	seenAt := storage.FormatTime(payload.EffectiveSeenAt(p.nowFn()))

	existing, err := p.offers.GetOfferByProviderID(ctx, payload.Ref.Provider, payload.Ref.ID)
	if err != nil {
		return p.dbError(fields, companyID, err)
	}
	if existing != nil {
		offerID, err := p.offers.UpsertOffer(ctx, buildOffer(payload, companyID, seenAt, nil))
		if err != nil {
			return p.dbError(fields, companyID, err)
		}
		p.metrics.OffersUpserted.Inc(1)
		return PersistResult{
			Status:    StatusOK,
			OfferID:   offerID,
			CompanyID: companyID,
			Canonical: existing.Canonical(),
		}
	}

	title := deref(payload.Title)
	description := deref(payload.Description)

	fingerprint := dedup.Fingerprint(title, description)
	if fingerprint != "" {
		hits, err := p.offers.FindCanonicalOffersByFingerprint(ctx, companyID, fingerprint)
		if err != nil {
			return p.dbError(fields, companyID, err)
		}
		if len(hits) > 0 {
			return p.bookRepost(ctx, fields, companyID, hits[0].ID, seenAt, dedup.Result{
				Duplicate:   true,
				CanonicalID: hits[0].ID,
				Reason:      dedup.ReasonFingerprint,
			})
		}
	}

	candidates, err := p.offers.ListCanonicalOffersForRepost(ctx, companyID)
	if err != nil {
		return p.dbError(fields, companyID, err)
	}
	if verdict := dedup.Detect(title, description, candidates); verdict.Duplicate {
		return p.bookRepost(ctx, fields, companyID, verdict.CanonicalID, seenAt, verdict)
	}

	var fp *string
	if fingerprint != "" {
		fp = &fingerprint
	}
	offerID, err := p.offers.UpsertOffer(ctx, buildOffer(payload, companyID, seenAt, fp))
	if err != nil {
		return p.dbError(fields, companyID, err)
	}
	p.metrics.OffersUpserted.Inc(1)
	log.WithFields(fields).WithField("offer_id", offerID).Debug("Persisted new canonical offer")
	return PersistResult{
		Status:    StatusOK,
		OfferID:   offerID,
		CompanyID: companyID,
		Canonical: true,
	}
}

func (p *persister) bookRepost(
	ctx context.Context,
	fields log.Fields,
	companyID, canonicalID int64,
	seenAt string,
	verdict dedup.Result,
) PersistResult {
	if err := p.offers.IncrementOfferRepostCount(ctx, canonicalID, seenAt); err != nil {
		return p.dbError(fields, companyID, err)
	}
	p.metrics.OffersReposts.Inc(1)
	log.WithFields(fields).WithFields(log.Fields{
		"canonical_offer_id": canonicalID,
		"reason":             verdict.Reason,
	}).Debug("Booked repost on canonical offer")
	return PersistResult{
		Status:      StatusRepostDuplicate,
		CanonicalID: canonicalID,
		CompanyID:   companyID,
		DedupReason: verdict.Reason,
		Similarity:  verdict.Similarity,
	}
}

func (p *persister) dbError(fields log.Fields, companyID int64, err error) PersistResult {
	p.metrics.PersistDBErrors.Inc(1)
	log.WithFields(fields).WithError(err).Error("Failed to persist offer")
	return PersistResult{Status: StatusDBError, CompanyID: companyID, Err: err}
}

// buildOffer maps a canonical payload onto the stored offer shape. Nil
// payload fields stay nil so the upsert's overwrite semantics null them.
func buildOffer(payload provider.OfferPayload, companyID int64, seenAt string, fingerprint *string) *storage.Offer {
	o := &storage.Offer{
		Provider:           payload.Ref.Provider,
		ProviderOfferID:    payload.Ref.ID,
		CompanyID:          companyID,
		Title:              payload.Title,
		Description:        payload.Description,
		Requirements:       payload.Requirements(),
		ContentFingerprint: fingerprint,
		LastSeenAt:         seenAt,
	}
	if payload.Ref.URL != "" {
		url := payload.Ref.URL
		o.URL = &url
	}
	if payload.PublishedAt != nil {
		s := storage.FormatTime(*payload.PublishedAt)
		o.PublishedAt = &s
	}
	if payload.UpdatedAt != nil {
		s := storage.FormatTime(*payload.UpdatedAt)
		o.SourceUpdatedAt = &s
	}
	return o
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
