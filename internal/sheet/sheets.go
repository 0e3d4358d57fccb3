package sheet

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

// SheetsConfig addresses one worksheet of a Google spreadsheet.
type SheetsConfig struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
	Width           int
	// KeyColumn is the column FindEmptyRow and AppendRow look at; 1 when
	// unset.
	KeyColumn int
}

// SheetsStore writes the log to a Google Sheets worksheet. Values are
// written RAW so stored text parses back unchanged.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	width         int
	keyColumn     int
}

// NewSheetsStore opens the Sheets API. Extra options are appended after
// the credentials option, which lets tests point the client at a fake
// endpoint.
func NewSheetsStore(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.Worksheet == "" {
		return nil, fmt.Errorf("worksheet name is required")
	}
	if cfg.Width < 1 {
		cfg.Width = len(models.RowFields)
	}
	if cfg.KeyColumn < 1 {
		cfg.KeyColumn = 1
	}

	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, opts...)
	all = append(all, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
		width:         cfg.Width,
		keyColumn:     cfg.KeyColumn,
	}, nil
}

func (s *SheetsStore) a1(rng string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(s.worksheet, "'", "''"), rng)
}

func (s *SheetsStore) rowRange(start, end, width int) string {
	return s.a1(fmt.Sprintf("A%d:%s%d", start, models.ColumnLetter(width), end))
}

func (s *SheetsStore) ReadRow(ctx context.Context, index int) (Row, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rowRange(index, index, s.width)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read row %d: %w", index, err)
	}
	if len(resp.Values) == 0 {
		return Row{}, nil
	}
	return toStrings(resp.Values[0]), nil
}

func (s *SheetsStore) WriteRow(ctx context.Context, index int, values []string) error {
	width := len(values)
	if width == 0 {
		return nil
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(values)}}
	resp, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(index, index, width), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return &utils.StoreWriteError{Op: "write_row", Row: index, Err: err}
	}
	if resp.UpdatedCells > 0 && int(resp.UpdatedCells) < width {
		return &utils.StoreWriteError{
			Op:      "write_row",
			Row:     index,
			Written: int(resp.UpdatedCells),
			Partial: true,
			Err:     fmt.Errorf("%d of %d cells updated", resp.UpdatedCells, width),
		}
	}
	return nil
}

func (s *SheetsStore) WriteCell(ctx context.Context, row, col int, value string) error {
	rng := s.a1(fmt.Sprintf("%s%d", models.ColumnLetter(col), row))
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return &utils.StoreWriteError{Op: "write_cell", Row: row, Err: err}
	}
	return nil
}

// AppendRow writes below the last non-empty key cell. The values API's own
// append detects tables from A1, which a preamble above the data breaks.
func (s *SheetsStore) AppendRow(ctx context.Context, values []string) (int, error) {
	col, err := s.ColumnValues(ctx, s.keyColumn)
	if err != nil {
		return 0, err
	}
	index := LastNonEmptyRow(col) + 1
	if err := s.WriteRow(ctx, index, values); err != nil {
		return 0, err
	}
	return index, nil
}

func (s *SheetsStore) ColumnValues(ctx context.Context, col int) ([]string, error) {
	letter := models.ColumnLetter(col)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1(letter+":"+letter)).
		MajorDimension("COLUMNS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s: %w", letter, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return trimTrailingBlank(toStrings(resp.Values[0])), nil
}

func (s *SheetsStore) FindEmptyRow(ctx context.Context, start, end int) (int, bool, error) {
	col, err := s.ColumnValues(ctx, s.keyColumn)
	if err != nil {
		return 0, false, err
	}
	row, ok := FirstEmptyRow(col, start, end)
	return row, ok, nil
}

func (s *SheetsStore) ClearRows(ctx context.Context, start, end int) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, s.rowRange(start, end, s.width), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear rows %d-%d: %w", start, end, err)
	}
	return nil
}

func (s *SheetsStore) HealthCheck(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields(googleapi.Field("spreadsheetId")).
		Context(ctx).
		Do()
	return err
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toStrings(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
