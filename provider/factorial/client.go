// Package factorial implements the hosted-ATS board client. Each tenant
// exposes a public careers board under its own subdomain; list rows omit
// descriptions, so offers must be hydrated from the detail endpoint
// before persistence.
package factorial

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/banasa44/buiss-scrapper-sub000/provider"
)

const (
	_defaultScheme = "https"
	_defaultDomain = "factorialhr.com"
	_jobsPath      = "/api/careers/jobs"

	// Boards are public and unauthenticated; stay polite.
	_defaultRequestsPerSec = 2
)

// Config carries the board endpoint shape and tuning knobs. The zero
// value targets the production domain.
type Config struct {
	Scheme         string
	Domain         string
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Client is the Factorial careers board client.
type Client struct {
	httpClient *http.Client
	scheme     string
	domain     string
	limiter    *rate.Limiter
}

var _ provider.ATS = (*Client)(nil)

// New returns a board client for cfg.
func New(cfg Config) *Client {
	c := &Client{
		httpClient: cfg.HTTPClient,
		scheme:     cfg.Scheme,
		domain:     cfg.Domain,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.scheme == "" {
		c.scheme = _defaultScheme
	}
	if c.domain == "" {
		c.domain = _defaultDomain
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = _defaultRequestsPerSec
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

type boardJob struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Location     string `json:"location"`
	Department   string `json:"department"`
	PublishedAt  string `json:"published_at"`
	UpdatedAt    string `json:"updated_at"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
}

// ListOffersForTenant returns the tenant board's published offers as list
// rows. Unknown tenants surface as provider.ErrTenantNotFound.
func (c *Client) ListOffersForTenant(ctx context.Context, tenantKey string) ([]provider.OfferPayload, error) {
	var jobs []boardJob
	if err := c.getJSON(ctx, c.boardURL(tenantKey)+_jobsPath, &jobs); err != nil {
		return nil, err
	}
	offers := make([]provider.OfferPayload, 0, len(jobs))
	for i := range jobs {
		offers = append(offers, c.toPayload(tenantKey, &jobs[i]))
	}
	log.WithFields(log.Fields{
		"tenant": tenantKey,
		"offers": len(offers),
	}).Debug("Listed Factorial board")
	return offers, nil
}

// HydrateOfferDetails fetches the detail row for each offer that still
// lacks a description. A failed detail fetch keeps the list row; the
// persistence layer rejects it as missing_description.
func (c *Client) HydrateOfferDetails(ctx context.Context, tenantKey string, offers []provider.OfferPayload) ([]provider.OfferPayload, error) {
	hydrated := make([]provider.OfferPayload, 0, len(offers))
	for _, offer := range offers {
		if offer.HasDescription() {
			hydrated = append(hydrated, offer)
			continue
		}
		var job boardJob
		detailURL := c.boardURL(tenantKey) + _jobsPath + "/" + offer.Ref.ID
		if err := c.getJSON(ctx, detailURL, &job); err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "factorial: hydration interrupted")
			}
			log.WithError(err).WithFields(log.Fields{
				"tenant":   tenantKey,
				"offer_id": offer.Ref.ID,
			}).Warn("Failed to hydrate Factorial offer, keeping list row")
			hydrated = append(hydrated, offer)
			continue
		}
		if job.Description != "" {
			desc := provider.CleanHTML(job.Description)
			offer.Description = &desc
		}
		if job.Requirements != "" {
			reqs := provider.CleanHTML(job.Requirements)
			offer.MinRequirements = &reqs
		}
		hydrated = append(hydrated, offer)
	}
	return hydrated, nil
}

// ProbeTenant reports whether the tenant slug hosts a board.
func (c *Client) ProbeTenant(ctx context.Context, tenantKey string) (bool, error) {
	var jobs []boardJob
	err := c.getJSON(ctx, c.boardURL(tenantKey)+_jobsPath, &jobs)
	if err == nil {
		return true, nil
	}
	if errors.Cause(err) == provider.ErrTenantNotFound {
		return false, nil
	}
	return false, err
}

func (c *Client) boardURL(tenantKey string) string {
	return c.scheme + "://" + tenantKey + "." + c.domain
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "factorial: rate limiter interrupted")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "factorial: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "factorial: request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(provider.ErrTenantNotFound, "factorial: %s", url)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("factorial: request to %s returned status %d: %s",
			url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "factorial: decode response")
}

func (c *Client) toPayload(tenantKey string, job *boardJob) provider.OfferPayload {
	p := provider.OfferPayload{
		Ref: provider.Ref{
			Provider: provider.Factorial,
			ID:       strconv.FormatInt(job.ID, 10),
		},
	}
	board := c.boardURL(tenantKey)
	if job.Slug != "" {
		p.Ref.URL = board + "/jobs/" + job.Slug
	} else {
		p.Ref.URL = board + "/jobs/" + p.Ref.ID
	}
	if job.Title != "" {
		title := job.Title
		p.Title = &title
	}
	if job.Description != "" {
		desc := provider.CleanHTML(job.Description)
		p.Description = &desc
	}
	if job.Requirements != "" {
		reqs := provider.CleanHTML(job.Requirements)
		p.MinRequirements = &reqs
	}
	if t, err := time.Parse(time.RFC3339, job.PublishedAt); err == nil {
		p.PublishedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, job.UpdatedAt); err == nil {
		p.UpdatedAt = &t
	}
	p.Metadata = map[string]string{"tenant": tenantKey}
	if job.Location != "" {
		p.Metadata["location"] = job.Location
	}
	if job.Department != "" {
		p.Metadata["department"] = job.Department
	}
	return p
}
