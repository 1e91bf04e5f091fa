// Package personio implements the hosted-ATS board client. Each tenant
// publishes one XML feed with complete position rows, so listing already
// yields descriptions and hydration is a pass-through.
package personio

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/banasa44/buiss-scrapper-sub000/provider"
)

const (
	_defaultScheme = "https"
	_defaultDomain = "jobs.personio.de"
	_feedPath      = "/xml"

	_defaultRequestsPerSec = 2
)

// Config carries the feed endpoint shape and tuning knobs. The zero
// value targets the production domain.
type Config struct {
	Scheme         string
	Domain         string
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Client is the Personio feed client.
type Client struct {
	httpClient *http.Client
	scheme     string
	domain     string
	limiter    *rate.Limiter
}

var _ provider.ATS = (*Client)(nil)

// New returns a feed client for cfg.
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

type feed struct {
	XMLName   xml.Name   `xml:"workzag-jobs"`
	Positions []position `xml:"position"`
}

type position struct {
	ID                 string        `xml:"id"`
	Office             string        `xml:"office"`
	Department         string        `xml:"department"`
	RecruitingCategory string        `xml:"recruitingCategory"`
	Name               string        `xml:"name"`
	Descriptions       []descSection `xml:"jobDescriptions>jobDescription"`
	EmploymentType     string        `xml:"employmentType"`
	Schedule           string        `xml:"schedule"`
	Seniority          string        `xml:"seniority"`
	CreatedAt          string        `xml:"createdAt"`
}

type descSection struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// ListOffersForTenant fetches and maps the tenant's feed. Unknown tenants
// surface as provider.ErrTenantNotFound.
func (c *Client) ListOffersForTenant(ctx context.Context, tenantKey string) ([]provider.OfferPayload, error) {
	f, err := c.fetchFeed(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	offers := make([]provider.OfferPayload, 0, len(f.Positions))
	for i := range f.Positions {
		offers = append(offers, c.toPayload(tenantKey, &f.Positions[i]))
	}
	log.WithFields(log.Fields{
		"tenant": tenantKey,
		"offers": len(offers),
	}).Debug("Listed Personio feed")
	return offers, nil
}

// HydrateOfferDetails returns the offers unchanged; feed rows already
// carry descriptions.
func (c *Client) HydrateOfferDetails(_ context.Context, _ string, offers []provider.OfferPayload) ([]provider.OfferPayload, error) {
	return offers, nil
}

// ProbeTenant reports whether the tenant slug hosts a feed.
func (c *Client) ProbeTenant(ctx context.Context, tenantKey string) (bool, error) {
	_, err := c.fetchFeed(ctx, tenantKey)
	if err == nil {
		return true, nil
	}
	if errors.Cause(err) == provider.ErrTenantNotFound {
		return false, nil
	}
	return false, err
}

func (c *Client) fetchFeed(ctx context.Context, tenantKey string) (*feed, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "personio: rate limiter interrupted")
	}
	feedURL := c.tenantURL(tenantKey) + _feedPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "personio: build request")
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "personio: request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(provider.ErrTenantNotFound, "personio: %s", feedURL)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("personio: feed %s returned status %d: %s",
			feedURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var f feed
	if err := xml.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "personio: decode feed")
	}
	return &f, nil
}

func (c *Client) tenantURL(tenantKey string) string {
	return c.scheme + "://" + tenantKey + "." + c.domain
}

func (c *Client) toPayload(tenantKey string, pos *position) provider.OfferPayload {
	p := provider.OfferPayload{
		Ref: provider.Ref{
			Provider: provider.Personio,
			ID:       strings.TrimSpace(pos.ID),
			URL:      c.tenantURL(tenantKey) + "/job/" + strings.TrimSpace(pos.ID),
		},
	}
	if name := strings.TrimSpace(pos.Name); name != "" {
		p.Title = &name
	}

	var sections []string
	for _, s := range pos.Descriptions {
		body := provider.CleanHTML(s.Value)
		if body == "" {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name != "" {
			sections = append(sections, name+"\n"+body)
		} else {
			sections = append(sections, body)
		}
		if isRequirementSection(name) && p.MinRequirements == nil {
			p.MinRequirements = &body
		}
	}
	if len(sections) > 0 {
		desc := strings.Join(sections, "\n\n")
		p.Description = &desc
	}

	// The feed has no separate publication time; creation is the closest
	// signal.
	if t, ok := parseFeedTime(pos.CreatedAt); ok {
		p.CreatedAt = &t
		p.PublishedAt = &t
	}

	p.Metadata = map[string]string{"tenant": tenantKey}
	for key, value := range map[string]string{
		"office":              pos.Office,
		"department":          pos.Department,
		"recruiting_category": pos.RecruitingCategory,
		"employment_type":     pos.EmploymentType,
		"schedule":            pos.Schedule,
		"seniority":           pos.Seniority,
	} {
		if value != "" {
			p.Metadata[key] = value
		}
	}
	return p
}

func isRequirementSection(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"requisito", "requirement", "perfil", "your profile"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseFeedTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
