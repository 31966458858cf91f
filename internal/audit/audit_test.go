package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
)

func testEntry(id string, at types.AuditType) types.AuditEntry {
	payload, _ := json.Marshal(map[string]any{"id": id})
	return types.AuditEntry{
		AuditType: at,
		Event: types.Event{
			Type:    types.EventProposalRecorded,
			ID:      "ev-" + id,
			At:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Payload: payload,
		},
		At: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}
}

func TestSink_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	sink, err := NewSink(path)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	want := []types.AuditEntry{
		testEntry("p-1", types.AuditSuccess),
		testEntry("p-1", types.AuditAppendOnlyViolation),
		testEntry("p-2", types.AuditValidationFailure),
	}
	for _, e := range want {
		if err := sink.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	mem := sink.Entries()
	if len(mem) != len(want) {
		t.Fatalf("Entries() len = %d, want %d", len(mem), len(want))
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ReadFile() len = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].AuditType != want[i].AuditType {
			t.Errorf("entry %d audit_type = %q, want %q", i, got[i].AuditType, want[i].AuditType)
		}
		if got[i].Event.ID != want[i].Event.ID {
			t.Errorf("entry %d event id = %q, want %q", i, got[i].Event.ID, want[i].Event.ID)
		}
	}
}

func TestSink_EntriesSnapshot(t *testing.T) {
	sink, err := NewSink(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	if err := sink.Append(testEntry("p-1", types.AuditSuccess)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	snap := sink.Entries()
	snap[0].AuditType = types.AuditBoundaryViolation

	if got := sink.Entries()[0].AuditType; got != types.AuditSuccess {
		t.Errorf("snapshot mutation leaked: audit_type = %q, want success", got)
	}
}

func TestReadFile_PartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	sink, err := NewSink(path)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	if err := sink.Append(testEntry("p-1", types.AuditSuccess)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Simulate a crash mid-append: a truncated record with no newline.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"audit_type":"succ`); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v, want partial line discarded", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadFile() len = %d, want 1", len(got))
	}
}

func TestRead_GarbageMidFile(t *testing.T) {
	input := `{"audit_type":"succ` + "\n" +
		`{"audit_type":"success","event":{"type":"action-recorded","id":"e1","at":"2024-01-01T00:00:00Z","payload":{}},"at":"2024-01-01T00:00:00Z"}` + "\n"
	_, err := Read(strings.NewReader(input))
	if err == nil {
		t.Fatal("Read() = nil error, want mid-file garbage rejected")
	}
}

func TestReadFile_Missing(t *testing.T) {
	got, err := ReadFile(filepath.Join(t.TempDir(), "absent.edn"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v, want nil for missing file", err)
	}
	if len(got) != 0 {
		t.Fatalf("ReadFile() len = %d, want 0", len(got))
	}
}

func TestResolvePath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("LOG_ROOT", "")
		if got, want := ResolvePath(), filepath.Join(DefaultRoot, FileName); got != want {
			t.Errorf("ResolvePath() = %q, want %q", got, want)
		}
	})
	t.Run("from env", func(t *testing.T) {
		t.Setenv("LOG_ROOT", "/var/lib/sidecar")
		if got, want := ResolvePath(), filepath.Join("/var/lib/sidecar", FileName); got != want {
			t.Errorf("ResolvePath() = %q, want %q", got, want)
		}
	})
}
