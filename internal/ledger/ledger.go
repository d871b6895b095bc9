// Package ledger records identification events durably and idempotently.
//
// The append-only audit log is the single source of truth: every successful
// Mark appends a line and syncs it to disk before reporting success. The CSV
// projection is a derived cache rebuilt from the audit log whenever it is
// missing or unreadable, so a crash between the two writes never loses a
// record.
package ledger

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Record is one attendance event. Records are never mutated after creation
// and never deleted by the core.
type Record struct {
	Name string `json:"name"`
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM:SS
	Note string `json:"note,omitempty"` // persisted only in the relational mirror
}

// MarkOutcome reports what a Mark call did.
type MarkOutcome int

const (
	// MarkFailed means nothing durable was written; the accompanying
	// error says why.
	MarkFailed MarkOutcome = iota
	// Recorded means a new attendance record was durably written.
	Recorded
	// AlreadyRecordedToday means a record for this identity and day
	// already exists; the call was a no-op.
	AlreadyRecordedToday
)

func (o MarkOutcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case AlreadyRecordedToday:
		return "already recorded today"
	default:
		return "not recorded"
	}
}

// Mirror receives a copy of every durably recorded event. Mirror failures
// are logged and never affect ledger state.
type Mirror interface {
	RecordAttendance(ctx context.Context, rec Record) error
}

// LoadInfo describes how the ledger state was reconstructed on open.
type LoadInfo struct {
	Records            int
	RecoveredFromAudit bool
}

// Ledger owns the audit log and the CSV projection. A single mutex
// serializes all writers; the underlying files never see concurrent writes.
type Ledger struct {
	mu        sync.Mutex
	auditPath string
	csvPath   string
	index     map[string]map[string]bool // identity -> set of dates
	records   []Record
	mirror    Mirror
}

// Open loads ledger state. The CSV projection is tried first; if it is
// missing or unreadable the audit log is replayed and the projection
// rewritten. The audit log always wins.
func Open(auditPath, csvPath string) (*Ledger, LoadInfo, error) {
	l := &Ledger{
		auditPath: auditPath,
		csvPath:   csvPath,
		index:     make(map[string]map[string]bool),
	}

	info := LoadInfo{}

	records, csvErr := readProjection(csvPath)
	if csvErr != nil {
		if !os.IsNotExist(csvErr) {
			log.Printf("attendance projection unreadable, replaying audit log: %v", csvErr)
		}
		var err error
		records, err = replayAudit(auditPath)
		if err != nil {
			return nil, info, fmt.Errorf("replaying audit log: %w", err)
		}
		info.RecoveredFromAudit = true
	} else {
		// The projection can lag the audit log after a crash between
		// the two writes. Replay and take the longer history.
		replayed, err := replayAudit(auditPath)
		if err != nil {
			return nil, info, fmt.Errorf("replaying audit log: %w", err)
		}
		if len(replayed) > len(records) {
			log.Printf("attendance projection is %d records behind the audit log, rebuilding", len(replayed)-len(records))
			records = replayed
			info.RecoveredFromAudit = true
		}
	}

	for _, rec := range records {
		l.apply(rec)
	}
	info.Records = len(l.records)

	if info.RecoveredFromAudit && len(l.records) > 0 {
		if err := writeProjection(csvPath, l.records); err != nil {
			return nil, info, fmt.Errorf("rewriting attendance projection: %w", err)
		}
	}

	return l, info, nil
}

// apply adds a record to the in-memory state, skipping same-day duplicates.
// Caller holds the lock (or is still constructing the ledger).
func (l *Ledger) apply(rec Record) bool {
	days := l.index[rec.Name]
	if days == nil {
		days = make(map[string]bool)
		l.index[rec.Name] = days
	}
	if days[rec.Date] {
		return false
	}
	days[rec.Date] = true
	l.records = append(l.records, rec)
	return true
}

// Mark records attendance for identity at time t, exactly once per day.
// On Recorded the audit line has been flushed and synced before return. A
// projection or mirror failure after the durable append surfaces as a
// non-nil error alongside Recorded; the record itself is kept, so a retry
// cannot produce a duplicate.
func (l *Ledger) Mark(ctx context.Context, identity string, t time.Time, note string) (MarkOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Name: identity,
		Date: t.Format("2006-01-02"),
		Time: t.Format("15:04:05"),
		Note: note,
	}

	if l.index[rec.Name][rec.Date] {
		return AlreadyRecordedToday, nil
	}

	if err := appendAudit(l.auditPath, rec); err != nil {
		return MarkFailed, fmt.Errorf("appending audit log: %w", err)
	}

	// The event is durable from here on. Nothing below may undo it.
	l.apply(rec)

	var projErr error
	if err := writeProjection(l.csvPath, l.records); err != nil {
		projErr = fmt.Errorf("updating attendance projection (audit log intact, rebuild will recover): %w", err)
	}

	if l.mirror != nil {
		if err := l.mirror.RecordAttendance(ctx, rec); err != nil {
			log.Printf("attendance mirror write failed for %s on %s: %v", rec.Name, rec.Date, err)
		}
	}

	return Recorded, projErr
}

// Marked reports whether identity already has a record for the day of t.
func (l *Ledger) Marked(identity string, t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index[identity][t.Format("2006-01-02")]
}

// Records returns an ordered copy of all attendance records.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Rebuild discards in-memory state and the CSV projection and reconstructs
// both from the audit log.
func (l *Ledger) Rebuild() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := replayAudit(l.auditPath)
	if err != nil {
		return 0, fmt.Errorf("replaying audit log: %w", err)
	}

	l.index = make(map[string]map[string]bool)
	l.records = nil
	for _, rec := range records {
		l.apply(rec)
	}

	if err := writeProjection(l.csvPath, l.records); err != nil {
		return len(l.records), fmt.Errorf("rewriting attendance projection: %w", err)
	}

	return len(l.records), nil
}

// SetMirror attaches a relational mirror for recorded events.
func (l *Ledger) SetMirror(m Mirror) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = m
}
