// Package dedup classifies incoming offers against a company's canonical
// offers: content fingerprinting for the exact fast-path and token-set
// similarity for the fuzzy fallback. The detector is pure; callers load
// the candidate set and pass it in.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/banasa44/buiss-scrapper-sub000/common/textnorm"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// SimilarityThreshold is the minimum description Jaccard score treated as
// a content duplicate.
const SimilarityThreshold = 0.82

// Reason discriminates how a detection verdict was reached.
type Reason string

const (
	// Duplicate reasons.
	ReasonFingerprint    Reason = "fingerprint"
	ReasonExactTitle     Reason = "exact_title"
	ReasonDescSimilarity Reason = "desc_similarity"

	// Not-duplicate reasons.
	ReasonNoCandidates       Reason = "no_candidates"
	ReasonMissingDescription Reason = "missing_description"
	ReasonBelowThreshold     Reason = "desc_below_threshold"
	ReasonTitleMismatch      Reason = "title_mismatch"
)

// Result is a detection verdict. CanonicalID and Similarity are only
// meaningful when Duplicate is true (Similarity only for the
// desc_similarity reason).
type Result struct {
	Duplicate   bool
	CanonicalID int64
	Reason      Reason
	Similarity  float64
}

// Fingerprint returns the SHA-256 hex of the folded title and description
// joined by a newline, or "" when either side is blank. Offers that differ
// only by casing, diacritics, or whitespace share a fingerprint.
func Fingerprint(title, description string) string {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(textnorm.Fold(title) + "\n" + textnorm.Fold(description)))
	return hex.EncodeToString(sum[:])
}

// Similarity is the bag-of-tokens Jaccard score of two texts in [0, 1].
func Similarity(a, b string) float64 {
	sa := textnorm.TokenSet(a)
	sb := textnorm.TokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	intersection := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	return float64(intersection) / float64(union)
}

// Detect runs the fuzzy fallback against the candidate canonicals: exact
// folded-title match first, then description similarity. Candidates must
// be ordered most recently seen first; ties resolve to the earliest
// candidate in that order.
func Detect(title, description string, candidates []storage.Offer) Result {
	if len(candidates) == 0 {
		return Result{Reason: ReasonNoCandidates}
	}

	wantTitle := textnorm.Fold(title)
	if wantTitle != "" {
		for i := range candidates {
			if candidates[i].Title == nil {
				continue
			}
			if textnorm.Fold(*candidates[i].Title) == wantTitle {
				return Result{
					Duplicate:   true,
					CanonicalID: candidates[i].ID,
					Reason:      ReasonExactTitle,
				}
			}
		}
	}

	if strings.TrimSpace(description) == "" {
		return Result{Reason: ReasonMissingDescription}
	}

	bestScore := -1.0
	var bestID int64
	for i := range candidates {
		if candidates[i].Description == nil {
			continue
		}
		score := Similarity(description, *candidates[i].Description)
		if score > bestScore {
			bestScore = score
			bestID = candidates[i].ID
		}
	}
	if bestScore < 0 {
		// No candidate carried a description; titles were the only signal.
		return Result{Reason: ReasonTitleMismatch}
	}
	if bestScore >= SimilarityThreshold {
		return Result{
			Duplicate:   true,
			CanonicalID: bestID,
			Reason:      ReasonDescSimilarity,
			Similarity:  bestScore,
		}
	}
	return Result{Reason: ReasonBelowThreshold, Similarity: bestScore}
}
