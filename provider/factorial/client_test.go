package factorial

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banasa44/buiss-scrapper-sub000/provider"
)

// rewriteTransport sends every request to the test server regardless of
// host, recording the hosts the client actually targeted.
type rewriteTransport struct {
	serverHost string
	hosts      []string
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.hosts = append(rt.hosts, req.URL.Host)
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = rt.serverHost
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *rewriteTransport) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	rt := &rewriteTransport{serverHost: serverURL.Host}
	return New(Config{
		RequestsPerSec: 1000,
		HTTPClient:     &http.Client{Transport: rt},
	}), rt
}

func TestListAndHydrate(t *testing.T) {
	detailHits := 0
	client, rt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/careers/jobs":
			fmt.Fprint(w, `[
				{"id": 101, "title": "Treasury Analyst", "slug": "treasury-analyst",
				 "location": "Madrid", "department": "Finance",
				 "published_at": "2026-07-01T09:00:00Z", "updated_at": "2026-07-02T09:00:00Z"},
				{"id": 102, "title": "Office Manager"}
			]`)
		case "/api/careers/jobs/101":
			detailHits++
			fmt.Fprint(w, `{"id": 101, "title": "Treasury Analyst",
				"description": "<p>Manage cash &amp; banking</p><ul><li>Daily positioning</li></ul>",
				"requirements": "<p>3 years in treasury</p>"}`)
		case "/api/careers/jobs/102":
			detailHits++
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	offers, err := client.ListOffersForTenant(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "acme.factorialhr.com", rt.hosts[0])

	first := offers[0]
	assert.Equal(t, provider.Factorial, first.Ref.Provider)
	assert.Equal(t, "101", first.Ref.ID)
	assert.Equal(t, "https://acme.factorialhr.com/jobs/treasury-analyst", first.Ref.URL)
	assert.Equal(t, "Treasury Analyst", *first.Title)
	assert.Nil(t, first.Description)
	assert.Equal(t, "Madrid", first.Metadata["location"])
	assert.Equal(t, "acme", first.Metadata["tenant"])
	require.NotNil(t, first.PublishedAt)
	require.NotNil(t, first.UpdatedAt)

	hydrated, err := client.HydrateOfferDetails(context.Background(), "acme", offers)
	require.NoError(t, err)
	require.Len(t, hydrated, 2)
	assert.Equal(t, 2, detailHits)

	require.NotNil(t, hydrated[0].Description)
	assert.Equal(t, "Manage cash & banking\nDaily positioning", *hydrated[0].Description)
	require.NotNil(t, hydrated[0].MinRequirements)
	assert.Equal(t, "3 years in treasury", *hydrated[0].MinRequirements)

	// The failed detail fetch keeps the list row unhydrated.
	assert.Nil(t, hydrated[1].Description)
}

func TestHydrateSkipsOffersWithDescription(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	desc := "already hydrated"
	offers := []provider.OfferPayload{{
		Ref:         provider.Ref{Provider: provider.Factorial, ID: "7"},
		Description: &desc,
	}}
	hydrated, err := client.HydrateOfferDetails(context.Background(), "acme", offers)
	require.NoError(t, err)
	require.Len(t, hydrated, 1)
	assert.Equal(t, desc, *hydrated[0].Description)
}

func TestListUnknownTenant(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.ListOffersForTenant(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, provider.ErrTenantNotFound, errors.Cause(err))
}

func TestProbeTenant(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	ok, err := client.ProbeTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProbeTenantMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	ok, err := client.ProbeTenant(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbeTenantServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ProbeTenant(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
