package identity

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/banasa44/buiss-scrapper-sub000/provider"
	"github.com/banasa44/buiss-scrapper-sub000/storage/sqlite"
)

func strPtr(s string) *string { return &s }

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme, S.L.", "acme"},
		{"Telefónica S.A.", "telefonica"},
		{"Wünder GmbH", "wunder"},
		{"Acme Sociedad Limitada", "acme"},
		{"Acme S.L.U.", "acme"},
		{"Globex   Corporation", "globex"},
		{"Initech Ltd.", "initech"},
		{"SL", "sl"},
		{"  ", ""},
		{"Nakatomi", "nakatomi"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeName(tc.in), "input %q", tc.in)
	}
}

func TestDomainFromURL(t *testing.T) {
	d := DomainFromURL("https://www.acme.es/jobs?ref=x")
	if assert.NotNil(t, d) {
		assert.Equal(t, "acme.es", *d)
	}

	d = DomainFromURL("acme.io")
	if assert.NotNil(t, d) {
		assert.Equal(t, "acme.io", *d)
	}

	d = DomainFromURL("HTTP://Careers.Acme.COM")
	if assert.NotNil(t, d) {
		assert.Equal(t, "careers.acme.com", *d)
	}

	assert.Nil(t, DomainFromURL(""))
	assert.Nil(t, DomainFromURL("localhost"))
	assert.Nil(t, DomainFromURL("https://not a url"))
}

func TestCompanyFromPayload(t *testing.T) {
	c := CompanyFromPayload(provider.CompanyPayload{
		Name:       strPtr("Acme, S.L."),
		WebsiteURL: strPtr("https://www.acme.es"),
	})
	if assert.NotNil(t, c) {
		assert.Equal(t, "acme.es", *c.WebsiteDomain)
		assert.Equal(t, "acme", *c.NormalizedName)
		assert.Equal(t, "Acme, S.L.", *c.Name)
	}

	c = CompanyFromPayload(provider.CompanyPayload{
		NormalizedName: strPtr("Globex Corp"),
	})
	if assert.NotNil(t, c) {
		assert.Nil(t, c.WebsiteDomain)
		assert.Equal(t, "globex", *c.NormalizedName)
	}

	assert.Nil(t, CompanyFromPayload(provider.CompanyPayload{}))
	assert.Nil(t, CompanyFromPayload(provider.CompanyPayload{Name: strPtr("  ")}))
}

type ResolverTestSuite struct {
	suite.Suite

	store    *sqlite.Store
	resolver Resolver
	ctx      context.Context
}

func (s *ResolverTestSuite) SetupTest() {
	store, err := sqlite.Open(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(context.Background()))
	s.store = store
	s.resolver = NewResolver(store)
	s.ctx = context.Background()
}

func (s *ResolverTestSuite) TearDownTest() {
	s.store.Close()
}

func TestResolverTestSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

// Payloads sharing a website domain resolve to the same company even when
// their display names differ.
func (s *ResolverTestSuite) TestResolveByDomain() {
	first, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name:       strPtr("Acme"),
		WebsiteURL: strPtr("https://www.acme.es"),
	})
	s.NoError(err)

	second, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name:       strPtr("Acme Iberia"),
		WebsiteURL: strPtr("https://acme.es/about"),
	})
	s.NoError(err)
	s.Equal(first, second)

	stored, err := s.store.GetCompanyByID(s.ctx, first)
	s.NoError(err)
	s.Require().NotNil(stored)
	// First sighting wins the name; later payloads only fill nulls.
	s.Equal("Acme", *stored.Name)
}

func (s *ResolverTestSuite) TestResolveByNormalizedName() {
	first, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name: strPtr("Acme, S.L."),
	})
	s.NoError(err)

	second, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name: strPtr("ACME S.L."),
	})
	s.NoError(err)
	s.Equal(first, second)
}

// A payload with a domain never falls back to the name key: a new domain
// creates a new company even when the name already exists.
func (s *ResolverTestSuite) TestDomainKeyDoesNotFallBackToName() {
	first, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name: strPtr("Acme"),
	})
	s.NoError(err)

	second, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{
		Name:       strPtr("Acme"),
		WebsiteURL: strPtr("https://acme.io"),
	})
	s.NoError(err)
	s.NotEqual(first, second)
}

func (s *ResolverTestSuite) TestResolveUnidentifiable() {
	_, err := s.resolver.Resolve(s.ctx, provider.CompanyPayload{})
	s.Error(err)
	s.Equal(ErrUnidentifiable, errors.Cause(err))
}
