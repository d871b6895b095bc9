package postgres

import (
	"context"
	"fmt"

	"github.com/vkravcenko/attendance/internal/ledger"
)

// RecordAttendance upserts one attendance record. The (name, date) unique
// constraint makes the write idempotent: replaying the same day is a no-op,
// matching the ledger's own semantics.
func (s *Store) RecordAttendance(ctx context.Context, rec ledger.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (name, date, time, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, date) DO NOTHING
	`, rec.Name, rec.Date, rec.Time, rec.Note)
	if err != nil {
		return fmt.Errorf("inserting attendance record: %w", err)
	}
	return nil
}

// Records returns all mirrored attendance records ordered by date and time.
func (s *Store) Records(ctx context.Context) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI:SS'), note
		FROM attendance
		ORDER BY date, time, name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying attendance records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.Name, &rec.Date, &rec.Time, &rec.Note); err != nil {
			return nil, fmt.Errorf("scanning attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance records: %w", err)
	}

	return records, nil
}
