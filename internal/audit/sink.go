// Package audit is the append-only durable log of every write attempt. The
// file is the source of truth for post-mortem: one JSON record per line,
// success and failure alike.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperengineering/sidecar/internal/types"
)

// FileName is the fixed audit file name under the log root.
const FileName = "sidecar-audit.edn"

// DefaultRoot is used when LOG_ROOT is unset.
const DefaultRoot = "./log"

// ResolvePath returns the audit file path from the environment. LOG_ROOT is
// read once at store construction, not per write.
func ResolvePath() string {
	root := os.Getenv("LOG_ROOT")
	if root == "" {
		root = DefaultRoot
	}
	return filepath.Join(root, FileName)
}

// Sink appends audit entries to a file and mirrors them in memory. The file
// is opened in append mode for each write, which keeps interleaving safe
// when several processes share the log.
type Sink struct {
	path string

	mu      sync.Mutex
	entries []types.AuditEntry
}

// NewSink creates a sink for the given path, creating the parent directory
// if missing.
func NewSink(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	return &Sink{path: path}, nil
}

// Path returns the audit file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes one entry to the file followed by a newline, then mirrors it
// in the in-memory list. If the file write fails the entry is not mirrored.
func (s *Sink) Append(e types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a snapshot copy of the in-memory audit list, in append
// order.
func (s *Sink) Entries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Restore seeds the in-memory list with entries replayed from an existing
// file, so reopened ledgers keep their full audit history visible.
func (s *Sink) Restore(entries []types.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries[:0], entries...)
}
