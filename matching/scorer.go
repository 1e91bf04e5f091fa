package matching

import (
	"encoding/json"
	"strings"

	"github.com/banasa44/buiss-scrapper-sub000/common/textnorm"
)

// Result is one scored offer. Score is clamped to [0, 10]; CategoryID is
// 0 when nothing matched. Detail is a JSON trace of the winning
// category's phrase hits.
type Result struct {
	Score      int
	CategoryID int64
	Detail     string
}

// Scorer scores offer text against the catalog.
type Scorer interface {
	Score(title, description string) Result
}

// NewScorer compiles the catalog's phrases for repeated scoring.
func NewScorer(catalog *Catalog) Scorer {
	s := &scorer{catalog: catalog}
	for _, cat := range catalog.Categories {
		var kws []compiledKeyword
		for _, kw := range cat.Keywords {
			key := paddedTokens(kw.Phrase)
			if key == "" {
				continue
			}
			kws = append(kws, compiledKeyword{phrase: kw.Phrase, key: key, weight: kw.Weight})
		}
		s.compiled = append(s.compiled, compiledCategory{id: cat.ID, keywords: kws})
	}
	return s
}

type compiledKeyword struct {
	phrase string
	key    string
	weight int
}

type compiledCategory struct {
	id       int64
	keywords []compiledKeyword
}

type scorer struct {
	catalog  *Catalog
	compiled []compiledCategory
}

type phraseHit struct {
	Phrase  string `json:"phrase"`
	Weight  int    `json:"weight"`
	InTitle bool   `json:"in_title"`
}

type matchDetail struct {
	CategoryID int64       `json:"category_id"`
	Raw        int         `json:"raw"`
	Hits       []phraseHit `json:"hits"`
}

// Score matches each category's phrases against the folded title and
// description on word boundaries. Title hits weigh double. The winning
// category is the highest raw sum; ties go to the lowest category id.
func (s *scorer) Score(title, description string) Result {
	titleText := paddedTokens(title)
	descText := paddedTokens(description)

	var (
		bestRaw  = 0
		bestID   int64
		bestHits []phraseHit
	)
	for _, cat := range s.compiled {
		raw := 0
		var hits []phraseHit
		for _, kw := range cat.keywords {
			inTitle := titleText != "" && strings.Contains(titleText, kw.key)
			inDesc := descText != "" && strings.Contains(descText, kw.key)
			switch {
			case inTitle:
				raw += kw.weight * 2
			case inDesc:
				raw += kw.weight
			default:
				continue
			}
			hits = append(hits, phraseHit{Phrase: kw.phrase, Weight: kw.weight, InTitle: inTitle})
		}
		if raw > bestRaw {
			bestRaw = raw
			bestID = cat.id
			bestHits = hits
		}
	}

	if bestRaw == 0 {
		return Result{}
	}

	score := bestRaw
	if score > 10 {
		score = 10
	}
	res := Result{Score: score, CategoryID: bestID}
	if data, err := json.Marshal(matchDetail{CategoryID: bestID, Raw: bestRaw, Hits: bestHits}); err == nil {
		res.Detail = string(data)
	}
	return res
}

// paddedTokens folds text into a space-padded token string so multi-word
// phrases match on word boundaries only.
func paddedTokens(text string) string {
	tokens := textnorm.Tokenize(text)
	if len(tokens) == 0 {
		return ""
	}
	return " " + strings.Join(tokens, " ") + " "
}
