package feedback

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/banasa44/buiss-scrapper-sub000/sheets"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

// _readRange covers company id (A), name (B, unused) and resolution (C)
// below the header row.
const _readRange = "A2:C"

// ErrWindowClosed is returned by the reader outside the feedback window.
var ErrWindowClosed = errors.New("feedback window closed")

// ReadStats counts the row-level outcomes of one sheet read.
type ReadStats struct {
	TotalRows     int
	ValidRows     int
	InvalidRows   int
	DuplicateRows int
}

// Reader pulls the id→resolution map from the sheet.
type Reader struct {
	transport sheets.Transport
	gate      *Gate
}

// NewReader returns a Reader over the transport.
func NewReader(transport sheets.Transport, gate *Gate) *Reader {
	return &Reader{transport: transport, gate: gate}
}

// Read parses the resolution column: blank rows are skipped, non-positive
// ids and unknown resolutions are counted invalid, and a duplicated id
// keeps its first occurrence. The gate is re-checked here so a miswired
// caller cannot trigger a daytime read.
func (r *Reader) Read(ctx context.Context) (map[int64]storage.Resolution, ReadStats, error) {
	var stats ReadStats
	if !r.gate.Open() {
		return nil, stats, ErrWindowClosed
	}

	rows, err := r.transport.ReadRange(ctx, _readRange)
	if err != nil {
		return nil, stats, errors.Wrap(err, "read resolution rows")
	}

	resolutions := make(map[int64]storage.Resolution, len(rows))
	for i, row := range rows {
		stats.TotalRows++

		idCell := cellAt(row, 0)
		resolutionCell := cellAt(row, 2)
		if idCell == "" && resolutionCell == "" {
			continue
		}

		id, err := strconv.ParseInt(idCell, 10, 64)
		if err != nil || id <= 0 {
			stats.InvalidRows++
			log.WithFields(log.Fields{"row": i + 2, "id": idCell}).
				Debug("Skipping sheet row with invalid company id")
			continue
		}

		resolution := storage.Resolution(strings.ToUpper(resolutionCell))
		if !resolution.Valid() {
			stats.InvalidRows++
			log.WithFields(log.Fields{"row": i + 2, "resolution": resolutionCell}).
				Debug("Skipping sheet row with invalid resolution")
			continue
		}

		if _, ok := resolutions[id]; ok {
			stats.DuplicateRows++
			continue
		}
		resolutions[id] = resolution
		stats.ValidRows++
	}
	return resolutions, stats, nil
}

func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
