package feedback

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// Change is one resolution transition requested by the sheet.
type Change struct {
	CompanyID int64
	From      storage.Resolution
	To        storage.Resolution
}

// Category drives how a change is applied.
type Category string

const (
	// CategoryDestructive moves a company into the resolved set and
	// deletes its offers.
	CategoryDestructive Category = "destructive"

	// CategoryReversal moves a resolved company back to an active state;
	// offers are not restored.
	CategoryReversal Category = "reversal"

	// CategoryInformational changes the label within the same lifecycle
	// side.
	CategoryInformational Category = "informational"
)

// DiffStats counts the comparison outcomes.
type DiffStats struct {
	Ignored   int
	Unchanged int
}

// Compare diffs the sheet against the store. Ids the store does not know
// are ignored with a warning; the returned changes are sorted by company
// id so apply order is deterministic.
func Compare(sheet, current map[int64]storage.Resolution) ([]Change, DiffStats) {
	var stats DiffStats
	changes := make([]Change, 0, len(sheet))
	for id, to := range sheet {
		from, ok := current[id]
		if !ok {
			stats.Ignored++
			log.WithField("company_id", id).Warn("Sheet references unknown company, ignoring")
			continue
		}
		if from == to {
			stats.Unchanged++
			continue
		}
		changes = append(changes, Change{CompanyID: id, From: from, To: to})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].CompanyID < changes[j].CompanyID })
	return changes, stats
}

// ClassifyChange buckets a transition by which lifecycle side it crosses.
func ClassifyChange(c Change) Category {
	switch {
	case !c.From.Resolved() && c.To.Resolved():
		return CategoryDestructive
	case c.From.Resolved() && !c.To.Resolved():
		return CategoryReversal
	default:
		return CategoryInformational
	}
}
