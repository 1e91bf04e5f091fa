// Package sheets wraps the Google Sheets API behind the narrow transport
// the feedback reader and the metrics syncer need. All ranges are
// expressed without the sheet name; the transport scopes them to its
// configured sheet.
package sheets

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Transport is the sheet surface consumed by feedback and sheetsync.
type Transport interface {
	// ReadRange returns the cells in the A1 range as strings, one slice
	// per row. Trailing empty cells may be absent.
	ReadRange(ctx context.Context, rangeA1 string) ([][]string, error)

	// UpdateRange overwrites exactly the given A1 range.
	UpdateRange(ctx context.Context, rangeA1 string, rows [][]string) error

	// AppendRows appends rows after the last data row of the range's table.
	AppendRows(ctx context.Context, rangeA1 string, rows [][]string) error

	// SetColumnValidation installs a one-of-list validation rule on a
	// zero-based column, from startRow (zero-based, header excluded) down.
	SetColumnValidation(ctx context.Context, column, startRow int64, allowed []string) error
}

// Config locates the spreadsheet and the service-account credentials.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// Client is the Google-backed Transport.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	sheetID       int64
}

var _ Transport = (*Client)(nil)

// NewClient authenticates with the service-account key file and resolves
// the numeric sheet id for the configured sheet name.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" || cfg.SheetName == "" {
		return nil, errors.New("sheets: spreadsheet id and sheet name are required")
	}
	keyJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "sheets: read credentials file")
	}
	creds, err := google.CredentialsFromJSON(ctx, keyJSON, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "sheets: parse credentials")
	}
	svc, err := sheetsapi.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, errors.Wrap(err, "sheets: build service")
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}
	if err := c.resolveSheetID(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) resolveSheetID(ctx context.Context) error {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "sheets: fetch spreadsheet metadata")
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == c.sheetName {
			c.sheetID = sheet.Properties.SheetId
			return nil
		}
	}
	return errors.Errorf("sheets: sheet %q not found in spreadsheet", c.sheetName)
}

func (c *Client) scoped(rangeA1 string) string {
	return "'" + c.sheetName + "'!" + rangeA1
}

func (c *Client) ReadRange(ctx context.Context, rangeA1 string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.scoped(rangeA1)).
		Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "sheets: read %s", rangeA1)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cellString(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (c *Client) UpdateRange(ctx context.Context, rangeA1 string, rows [][]string) error {
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.scoped(rangeA1), &sheetsapi.ValueRange{
		Values: toValues(rows),
	}).ValueInputOption("RAW").Context(ctx).Do()
	return errors.Wrapf(err, "sheets: update %s", rangeA1)
}

func (c *Client) AppendRows(ctx context.Context, rangeA1 string, rows [][]string) error {
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.scoped(rangeA1), &sheetsapi.ValueRange{
		Values: toValues(rows),
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return errors.Wrapf(err, "sheets: append to %s", rangeA1)
}

func (c *Client) SetColumnValidation(ctx context.Context, column, startRow int64, allowed []string) error {
	values := make([]*sheetsapi.ConditionValue, 0, len(allowed))
	for _, v := range allowed {
		values = append(values, &sheetsapi.ConditionValue{UserEnteredValue: v})
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			SetDataValidation: &sheetsapi.SetDataValidationRequest{
				Range: &sheetsapi.GridRange{
					SheetId:          c.sheetID,
					StartRowIndex:    startRow,
					StartColumnIndex: column,
					EndColumnIndex:   column + 1,
				},
				Rule: &sheetsapi.DataValidationRule{
					Condition: &sheetsapi.BooleanCondition{
						Type:   "ONE_OF_LIST",
						Values: values,
					},
					ShowCustomUi: true,
					Strict:       true,
				},
			},
		}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	return errors.Wrap(err, "sheets: set column validation")
}

// cellString renders an API cell value; the API delivers formatted cells
// as strings but numbers can arrive as float64.
func cellString(cell interface{}) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cell)
		}
		out = append(out, cells)
	}
	return out
}
