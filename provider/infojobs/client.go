// Package infojobs implements the marketplace search client. The public
// API authenticates with basic client credentials and pages search
// results; list rows carry a requirements snippet but no description.
package infojobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/banasa44/buiss-scrapper-sub000/provider"
)

const (
	_defaultBaseURL  = "https://api.infojobs.net"
	_searchPath      = "/api/9/offer"
	_defaultPageSize = 50
	_defaultMaxPages = 10

	// The public API allows roughly one request per second per app.
	_defaultRequestsPerSec = 1
)

// Config carries the client credentials and tuning knobs.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// PageSize caps maxResults per request; MaxPages bounds one search.
	PageSize int
	MaxPages int

	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Client is the InfoJobs search client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	pageSize     int
	maxPages     int
	limiter      *rate.Limiter
}

var _ provider.Marketplace = (*Client)(nil)

// New validates the config and returns a search client.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("infojobs: missing credentials")
	}
	c := &Client{
		httpClient:   cfg.HTTPClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pageSize:     cfg.PageSize,
		maxPages:     cfg.MaxPages,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = _defaultBaseURL
	}
	if c.pageSize <= 0 {
		c.pageSize = _defaultPageSize
	}
	if c.maxPages <= 0 {
		c.maxPages = _defaultMaxPages
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = _defaultRequestsPerSec
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c, nil
}

type searchResponse struct {
	CurrentPage  int           `json:"currentPage"`
	PageCount    int           `json:"totalPages"`
	TotalResults int           `json:"totalResults"`
	Offers       []searchOffer `json:"offers"`
}

type idValue struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

type searchAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type searchOffer struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Province       idValue      `json:"province"`
	Link           string       `json:"link"`
	Published      string       `json:"published"`
	Updated        string       `json:"updated"`
	Author         searchAuthor `json:"author"`
	RequirementMin string       `json:"requirementMin"`
	Applications   string       `json:"applications"`
}

// SearchOffers pages through the search results for params, mapping each
// row onto the canonical payload shape. Paging stops at the provider's
// page count, the configured page cap, or params.MaxResults, whichever
// comes first.
func (c *Client) SearchOffers(ctx context.Context, params provider.SearchParams) (*provider.Batch, error) {
	batch := &provider.Batch{}
	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "infojobs: rate limiter interrupted")
		}

		resp, err := c.searchPage(ctx, params, page)
		if err != nil {
			return nil, err
		}
		batch.Meta.Page = page
		batch.Meta.PageCount = resp.PageCount
		batch.Meta.Total = resp.TotalResults
		batch.Meta.PagesRead++

		for i := range resp.Offers {
			batch.Offers = append(batch.Offers, resp.Offers[i].toPayload())
			if params.MaxResults > 0 && len(batch.Offers) >= params.MaxResults {
				return batch, nil
			}
		}

		if page >= resp.PageCount || page >= c.maxPages || len(resp.Offers) == 0 {
			return batch, nil
		}
	}
}

func (c *Client) searchPage(ctx context.Context, params provider.SearchParams, page int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.Province != "" {
		q.Set("province", params.Province)
	}
	q.Set("maxResults", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("order", "updated-desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+_searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "infojobs: build search request")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "infojobs: search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("infojobs: search returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "infojobs: decode search response")
	}
	log.WithFields(log.Fields{
		"query":  params.Query,
		"page":   page,
		"offers": len(out.Offers),
	}).Debug("Fetched InfoJobs search page")
	return &out, nil
}

func (o *searchOffer) toPayload() provider.OfferPayload {
	p := provider.OfferPayload{
		Ref: provider.Ref{Provider: provider.InfoJobs, ID: o.ID, URL: o.Link},
	}
	if o.Title != "" {
		title := o.Title
		p.Title = &title
	}
	if o.RequirementMin != "" {
		snippet := o.RequirementMin
		p.RequirementsSnippet = &snippet
	}
	if t, err := time.Parse(time.RFC3339, o.Published); err == nil {
		p.PublishedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, o.Updated); err == nil {
		p.UpdatedAt = &t
	}
	if n, err := strconv.Atoi(o.Applications); err == nil {
		p.ApplicationsCount = &n
	}

	if o.Author.Name != "" {
		name := o.Author.Name
		p.Company.Name = &name
	}
	p.Metadata = map[string]string{}
	if o.Province.Value != "" {
		p.Metadata["province"] = o.Province.Value
	}
	if o.Author.ID != "" {
		p.Metadata["author_id"] = o.Author.ID
	}
	return p
}
