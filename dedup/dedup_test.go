package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

func strPtr(s string) *string { return &s }

func offer(id int64, title, description string) storage.Offer {
	o := storage.Offer{ID: id}
	if title != "" {
		o.Title = strPtr(title)
	}
	if description != "" {
		o.Description = strPtr(description)
	}
	return o
}

func TestFingerprintStability(t *testing.T) {
	base := Fingerprint("Backend Engineer", "Node.js role in Madrid.")
	assert.NotEmpty(t, base)

	// Casing, diacritics, and whitespace do not change the fingerprint.
	assert.Equal(t, base, Fingerprint("BACKEND  engineer", "Node.js role in Madrid."))
	assert.Equal(t, base, Fingerprint("Báckend Engineer", "Node.js  role in Madrid.\n"))

	assert.NotEqual(t, base, Fingerprint("Backend Engineer", "Different text entirely."))
}

func TestFingerprintBlankSides(t *testing.T) {
	assert.Equal(t, "", Fingerprint("", "some description"))
	assert.Equal(t, "", Fingerprint("some title", "   "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("go developer madrid", "Go Developer MADRID"))
	assert.Equal(t, 0.0, Similarity("go developer", ""))
	assert.Equal(t, 0.0, Similarity("alpha beta", "gamma delta"))

	// 3 shared tokens out of 5 distinct.
	got := Similarity("alpha beta gamma delta", "alpha beta gamma epsilon")
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestDetectNoCandidates(t *testing.T) {
	res := Detect("Backend Engineer", "desc", nil)
	assert.False(t, res.Duplicate)
	assert.Equal(t, ReasonNoCandidates, res.Reason)
}

func TestDetectExactTitle(t *testing.T) {
	candidates := []storage.Offer{
		offer(7, "Báckend  Engineer", "old text"),
		offer(8, "Frontend Engineer", "other"),
	}
	res := Detect("backend engineer", "completely unrelated words here", candidates)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(7), res.CanonicalID)
	assert.Equal(t, ReasonExactTitle, res.Reason)
}

// Candidates arrive most recently seen first; the first exact title hit
// wins ties.
func TestDetectExactTitlePrefersMostRecent(t *testing.T) {
	candidates := []storage.Offer{
		offer(12, "Backend Engineer", "a"),
		offer(3, "Backend Engineer", "b"),
	}
	res := Detect("Backend Engineer", "", candidates)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(12), res.CanonicalID)
}

func TestDetectDescriptionSimilarity(t *testing.T) {
	desc := "We are hiring a backend engineer to build Go services on Kubernetes in Madrid full time"
	near := "We are hiring a backend engineer to build Go services on Kubernetes in Madrid"
	candidates := []storage.Offer{
		offer(4, "Senior Backend", near),
		offer(5, "Data Analyst", "spreadsheets and dashboards all day"),
	}

	res := Detect("Backend Engineer (Go)", desc, candidates)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(4), res.CanonicalID)
	assert.Equal(t, ReasonDescSimilarity, res.Reason)
	assert.GreaterOrEqual(t, res.Similarity, SimilarityThreshold)
}

func TestDetectBelowThreshold(t *testing.T) {
	candidates := []storage.Offer{
		offer(4, "Senior Backend", "totally different job about sales and travel"),
	}
	res := Detect("Backend Engineer", "building Go services on Kubernetes", candidates)
	assert.False(t, res.Duplicate)
	assert.Equal(t, ReasonBelowThreshold, res.Reason)
	assert.Less(t, res.Similarity, SimilarityThreshold)
}

func TestDetectMissingDescription(t *testing.T) {
	candidates := []storage.Offer{
		offer(4, "Senior Backend", "some text"),
	}
	res := Detect("Backend Engineer", "   ", candidates)
	assert.False(t, res.Duplicate)
	assert.Equal(t, ReasonMissingDescription, res.Reason)
}

func TestDetectTitleMismatchWhenCandidatesLackDescriptions(t *testing.T) {
	candidates := []storage.Offer{
		offer(4, "Senior Backend", ""),
	}
	res := Detect("Backend Engineer", "building Go services", candidates)
	assert.False(t, res.Duplicate)
	assert.Equal(t, ReasonTitleMismatch, res.Reason)
}
