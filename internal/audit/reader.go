package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperengineering/sidecar/internal/types"
)

// Read parses audit entries from r, one JSON record per line. A partial
// record on the final line (a crash mid-append) is discarded; garbage before
// that is an error.
func Read(r io.Reader) ([]types.AuditEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var entries []types.AuditEntry
	var pendingErr error
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if pendingErr != nil {
			// The bad record was not the trailing one after all.
			return nil, pendingErr
		}
		var e types.AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			pendingErr = fmt.Errorf("audit log line %d: %w", line, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return entries, nil
}

// ReadFile reads the audit file at path. A missing file yields an empty
// history, not an error.
func ReadFile(path string) ([]types.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return Read(f)
}
