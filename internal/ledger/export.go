package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

var projectionHeader = []string{"Name", "Date", "Time"}

// readProjection loads the CSV projection. The returned error is
// os.IsNotExist-compatible for a missing file.
func readProjection(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing attendance projection: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("attendance projection %s has no header", path)
	}
	header := rows[0]
	if len(header) != len(projectionHeader) ||
		header[0] != projectionHeader[0] || header[1] != projectionHeader[1] || header[2] != projectionHeader[2] {
		return nil, fmt.Errorf("attendance projection %s has unexpected header %v", path, header)
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 3 {
			return nil, fmt.Errorf("attendance projection row %d has %d columns", i+2, len(row))
		}
		records = append(records, Record{Name: row[0], Date: row[1], Time: row[2]})
	}

	return records, nil
}

// writeProjection rewrites the CSV projection atomically (temp file +
// rename) so a crash mid-write never leaves a truncated file behind.
func writeProjection(path string, records []Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp projection: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(projectionHeader); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing projection header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Name, rec.Date, rec.Time}); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("writing projection row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("flushing projection: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp projection: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing projection: %w", err)
	}
	return nil
}
