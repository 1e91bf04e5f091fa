package sheetsync

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"

	"github.com/banasa44/buiss-scrapper-sub000/matching"
	"github.com/banasa44/buiss-scrapper-sub000/storage"
	"github.com/banasa44/buiss-scrapper-sub000/storage/sqlite"
)

// fakeTransport is an in-memory sheet: canned read rows plus a record of
// every write.
type fakeTransport struct {
	rows [][]string

	readErr   error
	updateErr error
	appendErr error

	updates     map[string][][]string
	appends     [][][]string
	validations []columnRule
}

type columnRule struct {
	column   int64
	startRow int64
	allowed  []string
}

func newFakeTransport(rows [][]string) *fakeTransport {
	return &fakeTransport{rows: rows, updates: map[string][][]string{}}
}

func (f *fakeTransport) ReadRange(_ context.Context, _ string) ([][]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}

func (f *fakeTransport) UpdateRange(_ context.Context, rangeA1 string, rows [][]string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[rangeA1] = rows
	return nil
}

func (f *fakeTransport) AppendRows(_ context.Context, _ string, rows [][]string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, rows)
	return nil
}

func (f *fakeTransport) SetColumnValidation(_ context.Context, column, startRow int64, allowed []string) error {
	f.validations = append(f.validations, columnRule{column: column, startRow: startRow, allowed: allowed})
	return nil
}

const _testCatalogYAML = `
categories:
  - id: 3
    label: Tesorería
    keywords:
      - phrase: tesorería
        weight: 5
`

type SheetSyncTestSuite struct {
	suite.Suite

	store   *sqlite.Store
	catalog *matching.Catalog
	ctx     context.Context
}

func (s *SheetSyncTestSuite) SetupTest() {
	store, err := sqlite.Open(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(context.Background()))
	s.store = store

	catalog, err := matching.ParseCatalog([]byte(_testCatalogYAML))
	s.Require().NoError(err)
	s.catalog = catalog
	s.ctx = context.Background()
}

func (s *SheetSyncTestSuite) TearDownTest() {
	s.store.Close()
}

func TestSheetSyncTestSuite(t *testing.T) {
	suite.Run(t, new(SheetSyncTestSuite))
}

func (s *SheetSyncTestSuite) seedCompany(name string, agg storage.Aggregation) int64 {
	domain := name + ".com"
	id, err := s.store.UpsertCompany(s.ctx, &storage.Company{
		Name:           &name,
		RawName:        &name,
		NormalizedName: &name,
		WebsiteDomain:  &domain,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpdateCompanyAggregation(s.ctx, id, agg))
	return id
}

func (s *SheetSyncTestSuite) newSyncer(transport *fakeTransport) *Syncer {
	return New(transport, s.store, s.catalog, NewMetrics(tally.NoopScope))
}

func (s *SheetSyncTestSuite) TestEmptySheetGetsHeaderAndRows() {
	avg := 7.5
	categoryID := int64(3)
	lastStrong := storage.FormatTime(time.Date(2026, 8, 22, 9, 30, 0, 0, time.UTC))
	id := s.seedCompany("acme", storage.Aggregation{
		MaxScore:         8,
		OfferCount:       3,
		UniqueOfferCount: 2,
		StrongOfferCount: 1,
		AvgStrongScore:   &avg,
		TopCategoryID:    &categoryID,
		LastStrongAt:     &lastStrong,
	})

	transport := newFakeTransport(nil)
	stats, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(Stats{Companies: 1, Appended: 1, HeaderWritten: true}, stats)

	s.Equal([][]string{_header}, transport.updates[_headerRange])
	s.Require().Len(transport.appends, 1)
	s.Equal([][]string{{
		strconv.FormatInt(id, 10), "acme", "PENDING",
		"8.0", "1", "2", "3", "7.5", "Tesorería", "2026-08-22",
	}}, transport.appends[0])

	s.Require().Len(transport.validations, 1)
	s.Equal(columnRule{
		column:   2,
		startRow: 1,
		allowed: []string{
			"PENDING", "IN_PROGRESS", "HIGH_INTEREST",
			"ALREADY_REVOLUT", "ACCEPTED", "REJECTED",
		},
	}, transport.validations[0])
}

func (s *SheetSyncTestSuite) TestRefreshesMetricsWithoutTouchingHumanColumns() {
	known := s.seedCompany("acme", storage.Aggregation{
		MaxScore:         9,
		OfferCount:       4,
		UniqueOfferCount: 3,
		StrongOfferCount: 2,
	})
	fresh := s.seedCompany("initech", storage.Aggregation{
		MaxScore:         5,
		OfferCount:       1,
		UniqueOfferCount: 1,
	})

	transport := newFakeTransport([][]string{
		_header,
		{strconv.FormatInt(known, 10), "acme", "HIGH_INTEREST", "7.0", "1", "2", "2", "", "", ""},
	})
	stats, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(Stats{Companies: 2, Appended: 1, Updated: 1}, stats)

	// Only D-J for the known row; the reviewer's resolution stays theirs.
	s.Equal([][]string{{"9.0", "2", "3", "4", "", "", ""}}, transport.updates["D2:J2"])
	s.NotContains(transport.updates, "A2:J2")

	s.Require().Len(transport.appends, 1)
	s.Equal([][]string{{
		strconv.FormatInt(fresh, 10), "initech", "PENDING",
		"5.0", "0", "1", "1", "", "", "",
	}}, transport.appends[0])
}

func (s *SheetSyncTestSuite) TestUnchangedRowsAreSkipped() {
	id := s.seedCompany("acme", storage.Aggregation{
		MaxScore:         9,
		OfferCount:       4,
		UniqueOfferCount: 3,
		StrongOfferCount: 2,
	})

	transport := newFakeTransport([][]string{
		_header,
		{strconv.FormatInt(id, 10), "acme", "PENDING", "9.0", "2", "3", "4", "", "", ""},
	})
	stats, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(Stats{Companies: 1, Unchanged: 1}, stats)
	s.Empty(transport.appends)
	s.NotContains(transport.updates, "D2:J2")
}

func (s *SheetSyncTestSuite) TestHeaderMismatchFailsFast() {
	s.seedCompany("acme", storage.Aggregation{OfferCount: 1})

	transport := newFakeTransport([][]string{
		{"ID", "Empresa", "Resolución"},
	})
	_, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "header mismatch")
	s.Empty(transport.updates)
	s.Empty(transport.appends)
}

func (s *SheetSyncTestSuite) TestContiguousUpdatesShareOneRange() {
	var ids []int64
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		ids = append(ids, s.seedCompany(name, storage.Aggregation{
			MaxScore:         6,
			OfferCount:       2,
			UniqueOfferCount: 2,
		}))
	}

	// Rows 2-4 are contiguous; a spacer row pushes the last company to 6.
	transport := newFakeTransport([][]string{
		_header,
		{strconv.FormatInt(ids[0], 10), "alpha", "PENDING", "", "", "", "", "", "", ""},
		{strconv.FormatInt(ids[1], 10), "beta", "PENDING", "", "", "", "", "", "", ""},
		{strconv.FormatInt(ids[2], 10), "gamma", "PENDING", "", "", "", "", "", "", ""},
		{"", "spacer", "", "", "", "", "", "", "", ""},
		{strconv.FormatInt(ids[3], 10), "delta", "PENDING", "", "", "", "", "", "", ""},
	})
	stats, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, stats.Updated)

	cells := []string{"6.0", "0", "2", "2", "", "", ""}
	s.Equal([][]string{cells, cells, cells}, transport.updates["D2:J4"])
	s.Equal([][]string{cells}, transport.updates["D6:J6"])
	s.Len(transport.updates, 2)
}

func (s *SheetSyncTestSuite) TestWriteFailuresAreCountedNotFatal() {
	known := s.seedCompany("acme", storage.Aggregation{
		MaxScore:         9,
		OfferCount:       4,
		UniqueOfferCount: 3,
	})
	s.seedCompany("initech", storage.Aggregation{OfferCount: 1})

	transport := newFakeTransport([][]string{
		_header,
		{strconv.FormatInt(known, 10), "acme", "PENDING", "", "", "", "", "", "", ""},
	})
	transport.appendErr = errors.New("quota exceeded")

	stats, err := s.newSyncer(transport).Sync(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "write batches failed")
	s.Equal(1, stats.WriteFailures)
	s.Zero(stats.Appended)
	s.Equal(1, stats.Updated)
	s.Contains(transport.updates, "D2:J2")
}

func TestMergeRuns(t *testing.T) {
	cells := func(v string) []string { return []string{v} }
	updates := []rowUpdate{
		{row: 2, cells: cells("a")},
		{row: 3, cells: cells("b")},
		{row: 4, cells: cells("c")},
		{row: 7, cells: cells("d")},
	}

	blocks := mergeRuns(updates, 50)
	assert.Equal(t, []updateBlock{
		{start: 2, rows: [][]string{cells("a"), cells("b"), cells("c")}},
		{start: 7, rows: [][]string{cells("d")}},
	}, blocks)

	capped := mergeRuns(updates[:3], 2)
	assert.Equal(t, []updateBlock{
		{start: 2, rows: [][]string{cells("a"), cells("b")}},
		{start: 4, rows: [][]string{cells("c")}},
	}, capped)
}

func TestMetricCellsFormatting(t *testing.T) {
	categoryID := int64(42)
	avg := 6.25
	lastStrong := storage.FormatTime(time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))

	full := storage.Company{
		MaxScore:         10,
		OfferCount:       7,
		UniqueOfferCount: 5,
		StrongOfferCount: 3,
		AvgStrongScore:   &avg,
		TopCategoryID:    &categoryID,
		LastStrongAt:     &lastStrong,
	}
	// Unknown category id falls back to the raw id.
	assert.Equal(t,
		[]string{"10.0", "3", "5", "7", "6.2", "42", "2026-07-02"},
		metricCells(full, nil))

	assert.Equal(t,
		[]string{"", "0", "0", "0", "", "", ""},
		metricCells(storage.Company{}, nil))
}
