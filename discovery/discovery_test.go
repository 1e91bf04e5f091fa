package discovery

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
	"github.com/banasa44/buiss-scrapper-sub000/storage/sqlite"
)

func strPtr(v string) *string { return &v }

func TestCandidateSlugs(t *testing.T) {
	cases := []struct {
		name    string
		company storage.Company
		want    []string
	}{
		{
			name: "domain label first, then name variants",
			company: storage.Company{
				WebsiteDomain:  strPtr("acme.com"),
				NormalizedName: strPtr("acme consulting"),
			},
			want: []string{"acme", "acmeconsulting", "acme-consulting"},
		},
		{
			name: "duplicates collapse",
			company: storage.Company{
				WebsiteDomain:  strPtr("acme.com"),
				NormalizedName: strPtr("acme"),
			},
			want: []string{"acme"},
		},
		{
			name:    "single word name",
			company: storage.Company{NormalizedName: strPtr("globex")},
			want:    []string{"globex"},
		},
		{
			name:    "too short slugs dropped",
			company: storage.Company{NormalizedName: strPtr("x")},
			want:    []string{},
		},
		{
			name:    "no identity evidence",
			company: storage.Company{},
			want:    []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CandidateSlugs(&tc.company))
		})
	}
}

// fakeProber answers probes from a fixed slug set and records the order.
type fakeProber struct {
	boards map[string]bool
	errs   map[string]error
	probes []string
}

func (f *fakeProber) ProbeTenant(_ context.Context, tenantKey string) (bool, error) {
	f.probes = append(f.probes, tenantKey)
	if err := f.errs[tenantKey]; err != nil {
		return false, err
	}
	return f.boards[tenantKey], nil
}

type DiscoveryTestSuite struct {
	suite.Suite

	store  *sqlite.Store
	prober *fakeProber
	disc   *Discoverer
	ctx    context.Context
}

func (s *DiscoveryTestSuite) SetupTest() {
	store, err := sqlite.Open(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(context.Background()))
	s.store = store
	s.prober = &fakeProber{boards: map[string]bool{}, errs: map[string]error{}}
	s.disc = New(store, store, map[string]Prober{"factorial": s.prober}, NewMetrics(tally.NoopScope))
	s.ctx = context.Background()
}

func (s *DiscoveryTestSuite) TearDownTest() {
	s.store.Close()
}

func TestDiscoveryTestSuite(t *testing.T) {
	suite.Run(t, new(DiscoveryTestSuite))
}

func (s *DiscoveryTestSuite) seedCompany(domain, normalized string) int64 {
	c := &storage.Company{}
	if domain != "" {
		c.WebsiteDomain = &domain
	}
	if normalized != "" {
		c.NormalizedName = &normalized
		c.Name = &normalized
	}
	id, err := s.store.UpsertCompany(s.ctx, c)
	s.Require().NoError(err)
	return id
}

func (s *DiscoveryTestSuite) TestBindsFirstHit() {
	companyID := s.seedCompany("acme.com", "acme consulting")
	s.prober.boards["acmeconsulting"] = true

	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Probed: 2, Bound: 1}, stats)
	s.Equal([]string{"acme", "acmeconsulting"}, s.prober.probes)

	src, err := s.store.GetCompanySource(s.ctx, companyID, "factorial")
	s.NoError(err)
	s.Require().NotNil(src)
	s.False(src.Hidden)
	s.Equal("acmeconsulting", *src.ProviderCompanyID)

	boards, err := s.disc.Boards(s.ctx, "factorial")
	s.NoError(err)
	s.Equal([]Board{{CompanyID: companyID, TenantKey: "acmeconsulting"}}, boards)
}

func (s *DiscoveryTestSuite) TestHidesMisses() {
	companyID := s.seedCompany("ghost.com", "")

	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Probed: 1, Hidden: 1}, stats)

	src, err := s.store.GetCompanySource(s.ctx, companyID, "factorial")
	s.NoError(err)
	s.Require().NotNil(src)
	s.True(src.Hidden)
	s.Nil(src.ProviderCompanyID)

	boards, err := s.disc.Boards(s.ctx, "factorial")
	s.NoError(err)
	s.Empty(boards)

	// The hidden row keeps the company out of the next pass.
	s.prober.probes = nil
	stats, err = s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{}, stats)
	s.Empty(s.prober.probes)
}

func (s *DiscoveryTestSuite) TestNoCandidatesHiddenWithoutProbing() {
	s.seedCompany("", "x")

	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Hidden: 1}, stats)
	s.Empty(s.prober.probes)
}

func (s *DiscoveryTestSuite) TestProbeErrorLeavesCompanyUnbound() {
	companyID := s.seedCompany("acme.com", "")
	s.prober.errs["acme"] = errors.New("connection refused")

	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Probed: 1, ProbeErrors: 1}, stats)

	src, err := s.store.GetCompanySource(s.ctx, companyID, "factorial")
	s.NoError(err)
	s.Nil(src)

	// Next pass retries the same company.
	s.prober.errs = map[string]error{}
	s.prober.boards["acme"] = true
	stats, err = s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Probed: 1, Bound: 1}, stats)
}

func (s *DiscoveryTestSuite) TestBatchSizeBoundsPass() {
	s.seedCompany("one.com", "")
	s.seedCompany("two.com", "")
	s.seedCompany("three.com", "")
	s.disc.SetBatchSize(2)

	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(2, stats.Probed)
	s.Equal(2, stats.Hidden)

	stats, err = s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(1, stats.Probed)
	s.Equal(1, stats.Hidden)
}

func (s *DiscoveryTestSuite) TestProvidersDiscoverIndependently() {
	personio := &fakeProber{boards: map[string]bool{"acme": true}, errs: map[string]error{}}
	s.disc = New(s.store, s.store, map[string]Prober{
		"factorial": s.prober,
		"personio":  personio,
	}, nil)

	companyID := s.seedCompany("acme.com", "")
	stats, err := s.disc.Run(s.ctx)
	s.NoError(err)
	s.Equal(Stats{Probed: 2, Bound: 1, Hidden: 1}, stats)

	factorialSrc, err := s.store.GetCompanySource(s.ctx, companyID, "factorial")
	s.NoError(err)
	s.Require().NotNil(factorialSrc)
	s.True(factorialSrc.Hidden)

	personioSrc, err := s.store.GetCompanySource(s.ctx, companyID, "personio")
	s.NoError(err)
	s.Require().NotNil(personioSrc)
	s.Equal("acme", *personioSrc.ProviderCompanyID)
}

func (s *DiscoveryTestSuite) TestCancelledContextAborts() {
	s.seedCompany("acme.com", "")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.disc.Run(ctx)
	s.Error(err)
}
