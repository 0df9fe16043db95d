package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV maps CSV rows onto raw field dictionaries keyed by schema name.
// Header names are trimmed and lower-cased. Columns that are not part of the
// schema (row ids, target labels) are dropped. A short row yields a map with
// only the fields it carries, so validation reports the rest as missing.
// A schema column may appear only once in the header.
func ParseCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty CSV input")
		}
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	columns := make([]string, len(headers))
	seen := make(map[string]bool, Count)
	mapped := 0
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := index[name]; !ok {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate CSV column %q", name)
		}
		seen[name] = true
		columns[i] = name
		mapped++
	}
	if mapped == 0 {
		return nil, fmt.Errorf("CSV header has no recognized feature columns")
	}

	var rows []map[string]any
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row %d: %w", len(rows)+1, err)
		}

		row := make(map[string]any, Count)
		for i, val := range rec {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			row[columns[i]] = val
		}
		rows = append(rows, row)
	}

	return rows, nil
}
