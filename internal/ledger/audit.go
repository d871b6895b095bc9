package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Audit log line format: "YYYY-MM-DD HH:MM:SS - <identity>", UTF-8,
// newline-terminated. One line per attendance event.
const auditSeparator = " - "

func formatAuditLine(rec Record) string {
	return rec.Date + " " + rec.Time + auditSeparator + rec.Name + "\n"
}

// parseAuditLine parses one audit log line. Identities may themselves
// contain " - ", so the split happens after the fixed-width timestamp.
func parseAuditLine(line string) (Record, error) {
	const stampLen = len("2006-01-02 15:04:05")
	if len(line) < stampLen+len(auditSeparator)+1 {
		return Record{}, fmt.Errorf("audit line too short: %q", line)
	}

	stamp := line[:stampLen]
	if _, err := time.Parse("2006-01-02 15:04:05", stamp); err != nil {
		return Record{}, fmt.Errorf("invalid audit timestamp %q: %w", stamp, err)
	}

	rest := line[stampLen:]
	if !strings.HasPrefix(rest, auditSeparator) {
		return Record{}, fmt.Errorf("malformed audit line: %q", line)
	}

	name := rest[len(auditSeparator):]
	if name == "" {
		return Record{}, fmt.Errorf("audit line without identity: %q", line)
	}

	return Record{Name: name, Date: stamp[:10], Time: stamp[11:]}, nil
}

// appendAudit appends one line to the audit log, flushing and syncing
// before returning success.
func appendAudit(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}

	if _, err := f.WriteString(formatAuditLine(rec)); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing audit line: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing audit log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	return nil
}

// replayAudit reads the full audit log in order. A missing file is an empty
// history. Malformed lines abort the replay: corruption of the source of
// truth must never be silently skipped.
func replayAudit(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := parseAuditLine(line)
		if err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return records, nil
}
