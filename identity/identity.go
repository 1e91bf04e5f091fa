// Package identity resolves the company identity embedded in offer
// payloads onto stored company rows. The identity key is the company
// website domain when the payload carries one, else the normalized
// company name; payloads carrying neither are unidentifiable and their
// offers are dropped upstream.
package identity

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/banasa44/buiss-scrapper-sub000/common/textnorm"
	"github.com/banasa44/buiss-scrapper-sub000/provider"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// ErrUnidentifiable is returned by Resolve when the payload carries no
// usable identity key. Callers compare with errors.Cause.
var ErrUnidentifiable = errors.New("company payload carries no identity key")

// Corporate legal-form suffixes dropped from normalized names, longest
// first so multi-word forms win over their abbreviations.
var _corporateSuffixes = []string{
	"sociedad limitada unipersonal",
	"sociedad anonima unipersonal",
	"sociedad limitada",
	"sociedad anonima",
	"sociedad cooperativa",
	"s l u",
	"s a u",
	"s l l",
	"s l",
	"s a",
	"s coop",
	"s c p",
	"slu",
	"sau",
	"sll",
	"scp",
	"sl",
	"sa",
	"srl",
	"sro",
	"gmbh",
	"ag",
	"bv",
	"nv",
	"ltd",
	"limited",
	"llc",
	"llp",
	"inc",
	"incorporated",
	"plc",
	"corp",
	"corporation",
}

// NormalizeName folds a raw company name into its identity form:
// lowercased, diacritics stripped, punctuation removed, whitespace
// collapsed, trailing corporate legal forms dropped. Dropping never
// empties the name: a company literally named "SL" keeps it.
func NormalizeName(name string) string {
	folded := textnorm.Fold(textnorm.StripPunctuation(name))
	if folded == "" {
		return ""
	}
	for changed := true; changed; {
		changed = false
		for _, suffix := range _corporateSuffixes {
			if folded == suffix {
				continue
			}
			if strings.HasSuffix(folded, " "+suffix) {
				folded = strings.TrimSpace(strings.TrimSuffix(folded, suffix))
				changed = true
				break
			}
		}
	}
	return folded
}

// DomainFromURL extracts the registrable host from a website URL:
// lowercased, leading www. removed. Returns nil when no plausible host
// can be extracted.
func DomainFromURL(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return nil
	}
	return &host
}

// Resolver maps company payloads onto stored companies, creating or
// enriching rows as needed.
type Resolver interface {
	// Resolve upserts the company carried by the payload and returns its
	// stable id. Returns ErrUnidentifiable when the payload has no usable
	// identity key.
	Resolve(ctx context.Context, payload provider.CompanyPayload) (int64, error)
}

// NewResolver returns a Resolver backed by the given company store.
func NewResolver(store storage.CompanyStore) Resolver {
	return &resolver{store: store}
}

type resolver struct {
	store storage.CompanyStore
}

func (r *resolver) Resolve(ctx context.Context, payload provider.CompanyPayload) (int64, error) {
	company := CompanyFromPayload(payload)
	if company == nil {
		return 0, ErrUnidentifiable
	}
	id, err := r.store.UpsertCompany(ctx, company)
	if err != nil {
		return 0, errors.Wrap(err, "failed to upsert company")
	}
	return id, nil
}

// CompanyFromPayload derives the storable company row from payload
// evidence, or nil when the payload is unidentifiable. The website
// domain is taken from the payload when present, else extracted from
// the website URL; the normalized name is derived from the display name
// when the provider did not supply a normalized key.
func CompanyFromPayload(payload provider.CompanyPayload) *storage.Company {
	company := &storage.Company{
		RawName:    payload.Name,
		WebsiteURL: payload.WebsiteURL,
	}
	if payload.Name != nil {
		if display := strings.TrimSpace(*payload.Name); display != "" {
			company.Name = &display
		}
	}

	if payload.WebsiteDomain != nil {
		d := strings.ToLower(strings.TrimSpace(*payload.WebsiteDomain))
		d = strings.TrimPrefix(d, "www.")
		if d != "" {
			company.WebsiteDomain = &d
		}
	}
	if company.WebsiteDomain == nil && payload.WebsiteURL != nil {
		company.WebsiteDomain = DomainFromURL(*payload.WebsiteURL)
	}

	var normalized string
	if payload.Name != nil {
		normalized = NormalizeName(*payload.Name)
	}
	if normalized == "" && payload.NormalizedName != nil {
		normalized = NormalizeName(*payload.NormalizedName)
	}
	if normalized != "" {
		company.NormalizedName = &normalized
	}

	if company.WebsiteDomain == nil && company.NormalizedName == nil {
		return nil
	}
	return company
}
