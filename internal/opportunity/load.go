package opportunity

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadFile reads search rows from a .csv or .json export.
func LoadFile(path string) ([]SearchRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening search data: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	default:
		return LoadCSV(f)
	}
}

// LoadJSON decodes a JSON array of rows.
func LoadJSON(r io.Reader) ([]SearchRow, error) {
	var rows []SearchRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding search data: %w", err)
	}
	return rows, nil
}

// LoadCSV reads a header-led CSV export. Column order is free; recognized
// headers are query, page, clicks, impressions, ctr and position. CTR may be
// a fraction (0.05) or a percentage (5%).
func LoadCSV(r io.Reader) ([]SearchRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"page", "impressions"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", required)
		}
	}

	var rows []SearchRow
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		row := SearchRow{Query: get("query"), Page: get("page")}
		if row.Page == "" {
			continue
		}
		if row.Impressions, err = parseInt(get("impressions")); err != nil {
			return nil, fmt.Errorf("line %d impressions: %w", line, err)
		}
		if row.Clicks, err = parseInt(get("clicks")); err != nil {
			return nil, fmt.Errorf("line %d clicks: %w", line, err)
		}
		if row.CTR, err = parseCTR(get("ctr")); err != nil {
			return nil, fmt.Errorf("line %d ctr: %w", line, err)
		}
		if row.Position, err = parseFloat(get("position")); err != nil {
			return nil, fmt.Errorf("line %d position: %w", line, err)
		}
		if get("ctr") == "" && row.Impressions > 0 {
			row.CTR = float64(row.Clicks) / float64(row.Impressions)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.ReplaceAll(s, ",", ""))
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseCTR(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		v, err := parseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")))
		return v / 100, err
	}
	return parseFloat(s)
}
