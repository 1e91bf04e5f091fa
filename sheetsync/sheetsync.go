// Package sheetsync pushes company metrics to the shared review sheet.
// The sheet is the human surface of the system: columns A-C belong to the
// reviewers and are written once on append, columns D-J mirror the store's
// aggregation and are refreshed every sync.
package sheetsync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/matching"
	"github.com/banasa44/buiss-scrapper-sub000/sheets"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

const (
	_fullRange   = "A1:J"
	_headerRange = "A1:J1"

	// _resolutionColumn is the zero-based index of the resolution column.
	_resolutionColumn = 2

	// _writeChunkSize bounds rows per write call.
	_writeChunkSize = 50
)

// _header is the contract with the reviewers' sheet. A sheet with any other
// header is not ours to write.
var _header = []string{
	"ID Empresa",
	"Empresa",
	"Resolución",
	"Score máx.",
	"Ofertas fuertes",
	"Ofertas únicas",
	"Actividad publicación",
	"Score medio fuerte",
	"Categoría principal",
	"Última oferta fuerte",
}

// Stats summarizes one sync pass.
type Stats struct {
	Companies     int
	Appended      int
	Updated       int
	Unchanged     int
	WriteFailures int
	HeaderWritten bool
}

// Syncer mirrors company metrics into the sheet.
type Syncer struct {
	transport sheets.Transport
	companies storage.CompanyStore
	catalog   *matching.Catalog
	metrics   *Metrics
}

// New returns a Syncer. catalog may be nil; category cells then fall back
// to the raw id.
func New(transport sheets.Transport, companies storage.CompanyStore, catalog *matching.Catalog, metrics *Metrics) *Syncer {
	return &Syncer{
		transport: transport,
		companies: companies,
		catalog:   catalog,
		metrics:   metrics,
	}
}

// Sync enforces the header contract, appends rows for companies the sheet
// does not know, and refreshes the metric columns of the rest. Write
// failures are counted and reported at the end so one bad batch does not
// stop the others.
func (s *Syncer) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	rows, err := s.transport.ReadRange(ctx, _fullRange)
	if err != nil {
		return stats, errors.Wrap(err, "read sheet")
	}

	stats.HeaderWritten, err = s.ensureHeader(ctx, rows)
	if err != nil {
		return stats, err
	}
	if err := s.transport.SetColumnValidation(ctx, _resolutionColumn, 1, resolutionList()); err != nil {
		log.WithError(err).Warn("Failed to refresh resolution validation rule")
	}

	index := rowIndex(rows)

	companies, err := s.companies.ListAllCompanies(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "list companies")
	}
	stats.Companies = len(companies)

	var appends [][]string
	var updates []rowUpdate
	for _, c := range companies {
		row, ok := index[c.ID]
		if !ok {
			appends = append(appends, appendRow(c, s.catalog))
			continue
		}
		cells := metricCells(c, s.catalog)
		if metricsMatch(rows, row, cells) {
			stats.Unchanged++
			continue
		}
		updates = append(updates, rowUpdate{row: row, cells: cells})
	}

	for _, chunk := range chunkRows(appends, _writeChunkSize) {
		if err := ctx.Err(); err != nil {
			return stats, errors.Wrap(err, "sheet sync interrupted")
		}
		if err := s.transport.AppendRows(ctx, _fullRange, chunk); err != nil {
			stats.WriteFailures++
			log.WithError(err).WithField("rows", len(chunk)).Error("Failed to append company rows")
			continue
		}
		stats.Appended += len(chunk)
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].row < updates[j].row })
	for _, block := range mergeRuns(updates, _writeChunkSize) {
		if err := ctx.Err(); err != nil {
			return stats, errors.Wrap(err, "sheet sync interrupted")
		}
		rangeA1 := fmt.Sprintf("D%d:J%d", block.start, block.start+len(block.rows)-1)
		if err := s.transport.UpdateRange(ctx, rangeA1, block.rows); err != nil {
			stats.WriteFailures++
			log.WithError(err).WithField("range", rangeA1).Error("Failed to update metric rows")
			continue
		}
		stats.Updated += len(block.rows)
	}

	if s.metrics != nil {
		s.metrics.Syncs.Inc(1)
		s.metrics.RowsAppended.Inc(int64(stats.Appended))
		s.metrics.RowsUpdated.Inc(int64(stats.Updated))
		s.metrics.WriteFailures.Inc(int64(stats.WriteFailures))
	}
	log.WithFields(log.Fields{
		"companies":      stats.Companies,
		"appended":       stats.Appended,
		"updated":        stats.Updated,
		"unchanged":      stats.Unchanged,
		"write_failures": stats.WriteFailures,
	}).Info("Sheet sync complete")

	if stats.WriteFailures > 0 {
		return stats, errors.Errorf("sheet sync: %d write batches failed", stats.WriteFailures)
	}
	return stats, nil
}

// ensureHeader writes the canonical header into an empty sheet and refuses
// to touch a sheet whose header differs.
func (s *Syncer) ensureHeader(ctx context.Context, rows [][]string) (bool, error) {
	if len(rows) == 0 {
		if err := s.transport.UpdateRange(ctx, _headerRange, [][]string{_header}); err != nil {
			return false, errors.Wrap(err, "write sheet header")
		}
		log.Info("Wrote sheet header")
		return true, nil
	}
	for i, want := range _header {
		if got := cellAt(rows[0], i); got != want {
			return false, errors.Errorf("sheet header mismatch at column %d: got %q, want %q", i+1, got, want)
		}
	}
	return false, nil
}

// rowIndex maps company id to 1-based spreadsheet row. The first occurrence
// of a duplicated id wins.
func rowIndex(rows [][]string) map[int64]int {
	index := make(map[int64]int)
	if len(rows) < 2 {
		return index
	}
	for i, row := range rows[1:] {
		id, err := strconv.ParseInt(cellAt(row, 0), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, ok := index[id]; ok {
			continue
		}
		index[id] = i + 2
	}
	return index
}

type rowUpdate struct {
	row   int
	cells []string
}

type updateBlock struct {
	start int
	rows  [][]string
}

// mergeRuns folds row-sorted updates into contiguous blocks of at most max
// rows each, so one range write covers a run of adjacent rows.
func mergeRuns(updates []rowUpdate, max int) []updateBlock {
	var blocks []updateBlock
	for _, u := range updates {
		if n := len(blocks); n > 0 {
			last := &blocks[n-1]
			if u.row == last.start+len(last.rows) && len(last.rows) < max {
				last.rows = append(last.rows, u.cells)
				continue
			}
		}
		blocks = append(blocks, updateBlock{start: u.row, rows: [][]string{u.cells}})
	}
	return blocks
}

func chunkRows(rows [][]string, size int) [][][]string {
	var chunks [][][]string
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

// metricsMatch reports whether the sheet already shows the computed metric
// cells for the 1-based row.
func metricsMatch(rows [][]string, row int, cells []string) bool {
	if row-1 >= len(rows) {
		return false
	}
	existing := rows[row-1]
	for i, want := range cells {
		if cellAt(existing, 3+i) != want {
			return false
		}
	}
	return true
}

// appendRow renders the full 10-column row for a company new to the sheet.
func appendRow(c storage.Company, catalog *matching.Catalog) []string {
	name := ""
	if c.Name != nil {
		name = *c.Name
	}
	row := []string{strconv.FormatInt(c.ID, 10), name, string(c.Resolution)}
	return append(row, metricCells(c, catalog)...)
}

// metricCells renders columns D through J.
func metricCells(c storage.Company, catalog *matching.Catalog) []string {
	return []string{
		maxScoreCell(c),
		strconv.Itoa(c.StrongOfferCount),
		strconv.Itoa(c.UniqueOfferCount),
		strconv.Itoa(c.OfferCount),
		avgScoreCell(c.AvgStrongScore),
		categoryCell(c.TopCategoryID, catalog),
		dateCell(c.LastStrongAt),
	}
}

func maxScoreCell(c storage.Company) string {
	if c.OfferCount == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(c.MaxScore), 'f', 1, 64)
}

func avgScoreCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func categoryCell(id *int64, catalog *matching.Catalog) string {
	if id == nil {
		return ""
	}
	if catalog != nil {
		if label, ok := catalog.Label(*id); ok {
			return label
		}
	}
	return strconv.FormatInt(*id, 10)
}

func dateCell(at *string) string {
	if at == nil {
		return ""
	}
	t := storage.ParseTime(*at)
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func resolutionList() []string {
	all := storage.AllResolutions()
	out := make([]string, 0, len(all))
	for _, r := range all {
		out = append(out, string(r))
	}
	return out
}

func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
