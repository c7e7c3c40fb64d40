package sales

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// Column aliases accepted in CSV headers, matched case-insensitively.
var columnAliases = map[string][]string{
	"sold_at":        {"sale_time", "sold_at", "sale_date", "date", "timestamp"},
	"location_id":    {"location_id", "location", "store_id"},
	"item_id":        {"item_id", "item"},
	"variation_id":   {"item_variation_id", "variation_id", "variation"},
	"quantity":       {"quantity_purchased", "quantity", "qty", "y"},
	"item_name":      {"item_name", "name"},
	"variation_name": {"variation_name"},
}

var requiredColumns = []string{"sold_at", "item_id", "quantity"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// CSVSource reads sale rows from one CSV file or every .csv file in a directory.
type CSVSource struct {
	path     string
	location *time.Location
}

// NewCSVSource creates a CSV source. Timestamps without a zone are read in loc
// (UTC when nil).
func NewCSVSource(path string, loc *time.Location) *CSVSource {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVSource{path: path, location: loc}
}

func (s *CSVSource) Name() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Files lists the CSV files the source will read, sorted by name.
func (s *CSVSource) Files() ([]string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.path, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadSales reads every file. Any unreadable file fails the whole load.
func (s *CSVSource) LoadSales(ctx context.Context) ([]domain.SaleRow, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no csv files in %s", domain.ErrSourceUnavailable, s.path)
	}

	var rows []domain.SaleRow
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileRows, err := s.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, path, err)
		}
		log.Debug().Str("file", path).Int("rows", len(fileRows)).Msg("loaded sales csv")
		rows = append(rows, fileRows...)
	}

	return rows, nil
}

func (s *CSVSource) readFile(path string) ([]domain.SaleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f, s.location)
}

// ReadCSV parses sale rows from r. Blank lines are skipped; a malformed value
// fails with the offending line number.
func ReadCSV(r io.Reader, loc *time.Location) ([]domain.SaleRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []domain.SaleRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}

		row, err := parseRecord(record, cols, loc)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	cols := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[field] = i
				break
			}
		}
	}

	for _, field := range requiredColumns {
		if _, ok := cols[field]; !ok {
			return nil, fmt.Errorf("missing required column: %s", field)
		}
	}
	return cols, nil
}

func parseRecord(record []string, cols map[string]int, loc *time.Location) (domain.SaleRow, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row domain.SaleRow
	var err error

	if row.SoldAt, err = parseTime(get("sold_at"), loc); err != nil {
		return row, err
	}
	if row.ItemID, err = parseID(get("item_id"), "item_id"); err != nil {
		return row, err
	}
	if row.LocationID, err = parseID(get("location_id"), "location_id"); err != nil {
		return row, err
	}
	if row.VariationID, err = parseID(get("variation_id"), "variation_id"); err != nil {
		return row, err
	}
	if row.Quantity, err = parseQuantity(get("quantity")); err != nil {
		return row, err
	}
	row.ItemName = get("item_name")
	row.VariationName = get("variation_name")

	return row, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing sale time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid sale time %q", v)
}

// parseID treats an empty optional id as 0.
func parseID(v, field string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, v)
	}
	return id, nil
}

// parseQuantity accepts integral decimals such as "3.0" from spreadsheet exports.
func parseQuantity(v string) (int64, error) {
	if q, err := strconv.ParseInt(v, 10, 64); err == nil {
		return q, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("invalid quantity %q", v)
	}
	return int64(f), nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
