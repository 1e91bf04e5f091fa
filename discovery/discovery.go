// Package discovery probes hosted-ATS boards for companies that have no
// source binding yet. Hits become company_sources rows carrying the
// tenant slug; misses become hidden rows so a company is probed at most
// once per provider.
package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const (
	// _defaultBatchSize bounds how many companies one cycle probes per
	// provider.
	_defaultBatchSize = 25

	_maxCandidates = 3
	_minSlugLen    = 2
)

// Prober is the probing half of an ATS client.
type Prober interface {
	ProbeTenant(ctx context.Context, tenantKey string) (bool, error)
}

// Board is a discovered (company, tenant) binding ready for ingestion.
type Board struct {
	CompanyID int64
	TenantKey string
}

// Stats summarizes one discovery pass.
type Stats struct {
	Probed      int
	Bound       int
	Hidden      int
	ProbeErrors int
}

// Metrics is a placeholder for all metrics in discovery.
type Metrics struct {
	Probed      tally.Counter
	Bound       tally.Counter
	Hidden      tally.Counter
	ProbeErrors tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) *Metrics {
	discoveryScope := scope.SubScope("discovery")
	return &Metrics{
		Probed:      discoveryScope.Counter("probed"),
		Bound:       discoveryScope.Counter("bound"),
		Hidden:      discoveryScope.Counter("hidden"),
		ProbeErrors: discoveryScope.Counter("probe_errors"),
	}
}

// Discoverer runs discovery passes over every registered ATS provider.
type Discoverer struct {
	companies storage.CompanyStore
	sources   storage.CompanySourceStore
	probers   map[string]Prober
	batchSize int
	metrics   *Metrics
}

// New returns a Discoverer probing with the given per-provider clients.
func New(
	companies storage.CompanyStore,
	sources storage.CompanySourceStore,
	probers map[string]Prober,
	metrics *Metrics,
) *Discoverer {
	return &Discoverer{
		companies: companies,
		sources:   sources,
		probers:   probers,
		batchSize: _defaultBatchSize,
		metrics:   metrics,
	}
}

// SetBatchSize overrides the per-provider probe budget.
func (d *Discoverer) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// Run probes one batch of undiscovered companies per provider. Store and
// probe failures are logged and counted, not returned; only context
// cancellation aborts the pass.
func (d *Discoverer) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	tags := make([]string, 0, len(d.probers))
	for tag := range d.probers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if ctx.Err() != nil {
			return stats, errors.Wrap(ctx.Err(), "discovery interrupted")
		}
		companies, err := d.companies.ListCompaniesNeedingATSDiscovery(ctx, tag, d.batchSize)
		if err != nil {
			log.WithError(err).WithField("provider", tag).
				Error("Failed to list companies for ATS discovery")
			continue
		}
		for i := range companies {
			if ctx.Err() != nil {
				return stats, errors.Wrap(ctx.Err(), "discovery interrupted")
			}
			d.probeCompany(ctx, tag, &companies[i], &stats)
		}
	}
	return stats, nil
}

// Boards returns the discovered bindings for a provider.
func (d *Discoverer) Boards(ctx context.Context, providerTag string) ([]Board, error) {
	sources, err := d.sources.ListCompanySources(ctx, providerTag)
	if err != nil {
		return nil, errors.Wrapf(err, "list sources for %s", providerTag)
	}
	boards := make([]Board, 0, len(sources))
	for _, s := range sources {
		if s.ProviderCompanyID == nil || *s.ProviderCompanyID == "" {
			continue
		}
		boards = append(boards, Board{CompanyID: s.CompanyID, TenantKey: *s.ProviderCompanyID})
	}
	return boards, nil
}

func (d *Discoverer) probeCompany(ctx context.Context, tag string, company *storage.Company, stats *Stats) {
	fields := log.Fields{"provider": tag, "company_id": company.ID}

	for _, slug := range CandidateSlugs(company) {
		stats.Probed++
		if d.metrics != nil {
			d.metrics.Probed.Inc(1)
		}
		found, err := d.probers[tag].ProbeTenant(ctx, slug)
		if err != nil {
			// Leave the company unbound so the next cycle retries.
			stats.ProbeErrors++
			if d.metrics != nil {
				d.metrics.ProbeErrors.Inc(1)
			}
			log.WithError(err).WithFields(fields).WithField("tenant", slug).
				Warn("ATS probe failed, will retry next cycle")
			return
		}
		if !found {
			continue
		}

		tenant := slug
		if _, err := d.sources.UpsertCompanySource(ctx, &storage.CompanySource{
			CompanyID:         company.ID,
			Provider:          tag,
			ProviderCompanyID: &tenant,
		}); err != nil {
			log.WithError(err).WithFields(fields).WithField("tenant", slug).
				Error("Failed to bind company to ATS board")
			return
		}
		stats.Bound++
		if d.metrics != nil {
			d.metrics.Bound.Inc(1)
		}
		log.WithFields(fields).WithField("tenant", slug).Info("Bound company to ATS board")
		return
	}

	// No candidate hosts a board (or there was nothing to probe); a
	// hidden row stops this company from consuming the probe budget
	// again.
	if _, err := d.sources.UpsertCompanySource(ctx, &storage.CompanySource{
		CompanyID: company.ID,
		Provider:  tag,
		Hidden:    true,
	}); err != nil {
		log.WithError(err).WithFields(fields).Error("Failed to record ATS discovery miss")
		return
	}
	stats.Hidden++
	if d.metrics != nil {
		d.metrics.Hidden.Inc(1)
	}
	log.WithFields(fields).Debug("No ATS board found for company")
}

// CandidateSlugs derives tenant slugs worth probing for a company: the
// website domain's first label, then the normalized name with spaces
// removed or hyphenated.
func CandidateSlugs(company *storage.Company) []string {
	var candidates []string
	if company.WebsiteDomain != nil {
		if label, _, _ := strings.Cut(*company.WebsiteDomain, "."); label != "" {
			candidates = append(candidates, label)
		}
	}
	if company.NormalizedName != nil {
		words := strings.Fields(*company.NormalizedName)
		if len(words) > 0 {
			candidates = append(candidates, strings.Join(words, ""))
			if len(words) > 1 {
				candidates = append(candidates, strings.Join(words, "-"))
			}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if len(c) < _minSlugLen {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == _maxCandidates {
			break
		}
	}
	return out
}
