// Package ledger is the validated, append-only event-sourced store at the
// core of the sidecar. Records are created, never mutated; corrections are
// new records, and every attempt — committed or rejected — is mirrored to
// the audit log.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hyperengineering/sidecar/internal/audit"
	"github.com/hyperengineering/sidecar/internal/ident"
	"github.com/hyperengineering/sidecar/internal/types"
	"github.com/hyperengineering/sidecar/internal/validation"
)

// Ledger is the store handle. All record operations are linearized through
// one mutex; reads hand out snapshot copies. The audit record is appended
// before the in-memory commit (write-ahead audit): if the file write fails,
// the operation fails and in-memory state is untouched. After a crash the
// log may therefore record a committed write whose in-memory effect died
// with the process; Open replays the log to recover exactly that state.
type Ledger struct {
	mu    sync.Mutex
	clock ident.Clock
	ids   ident.Generator
	log   *slog.Logger
	sink  *audit.Sink

	proposals  map[string]types.Proposal
	promotions map[string]types.Promotion
	evidence   map[string]types.Evidence
	actions    map[string]types.Action
	facts      map[string]types.Fact
	bridges    map[string]types.BridgeTriple
	chains     map[string]types.Chain
}

// Options configures a ledger. Zero values fall back to the production
// defaults; tests inject deterministic clock and id implementations.
type Options struct {
	// AuditPath overrides the audit file location. Empty resolves from
	// LOG_ROOT (default ./log/sidecar-audit.edn).
	AuditPath string
	Clock     ident.Clock
	IDs       ident.Generator
	Logger    *slog.Logger
}

// New constructs an empty ledger bound to its audit file. Use Open to also
// replay an existing audit file into memory.
func New(opts Options) (*Ledger, error) {
	path := opts.AuditPath
	if path == "" {
		path = audit.ResolvePath()
	}
	sink, err := audit.NewSink(path)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = ident.SystemClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = ident.RandomGenerator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		clock:      clock,
		ids:        ids,
		log:        logger,
		sink:       sink,
		proposals:  make(map[string]types.Proposal),
		promotions: make(map[string]types.Promotion),
		evidence:   make(map[string]types.Evidence),
		actions:    make(map[string]types.Action),
		facts:      make(map[string]types.Fact),
		bridges:    make(map[string]types.BridgeTriple),
		chains:     make(map[string]types.Chain),
	}, nil
}

// newEvent wraps a payload in a fresh envelope.
func (l *Ledger) newEvent(t types.EventType, payload any) (types.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return types.Event{Type: t, ID: l.ids.EventID(), At: l.clock.Now(), Payload: raw}, nil
}

// commit runs the shared write discipline under the caller-held lock:
// validate, boundary-check, uniqueness-check, audit, insert. Each rejection
// path emits the matching audit entry and returns a RejectError.
func (l *Ledger) commit(ev types.Event, boundary, unique func() *types.FieldError, insert func()) error {
	if errs := validation.ValidateEvent(ev); len(errs) > 0 {
		return l.reject(types.AuditValidationFailure, ev, errs)
	}
	if boundary != nil {
		if fe := boundary(); fe != nil {
			return l.reject(types.AuditBoundaryViolation, ev, []types.FieldError{*fe})
		}
	}
	if fe := unique(); fe != nil {
		return l.reject(types.AuditAppendOnlyViolation, ev, []types.FieldError{*fe})
	}
	entry := types.AuditEntry{AuditType: types.AuditSuccess, Event: ev, At: l.clock.Now()}
	if err := l.sink.Append(entry); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	insert()
	l.log.Debug("write committed", "event_type", ev.Type, "event_id", ev.ID)
	return nil
}

// reject audits a failed attempt and returns it as a RejectError. An audit
// IO fault takes precedence over the rejection it was recording.
func (l *Ledger) reject(at types.AuditType, ev types.Event, errs []types.FieldError) error {
	entry := types.AuditEntry{AuditType: at, Event: ev, Errors: errs, At: l.clock.Now()}
	if aerr := l.sink.Append(entry); aerr != nil {
		l.log.Error("audit append failed while recording rejection",
			"audit_type", at, "event_type", ev.Type, "error", aerr)
		return fmt.Errorf("audit append: %w", aerr)
	}
	l.log.Warn("write rejected",
		"audit_type", at, "event_type", ev.Type, "event_id", ev.ID, "errors", len(errs))
	return &types.RejectError{Audit: at, Errors: errs}
}

func duplicate(field, id string) *types.FieldError {
	return &types.FieldError{
		Field:   field,
		Kind:    types.ErrDuplicate,
		Message: "id already recorded; records are append-only",
		Detail:  id,
	}
}

func notFound(field, what, id string) *types.FieldError {
	return &types.FieldError{
		Field:   field,
		Kind:    types.ErrMissing,
		Message: what + " not found",
		Detail:  id,
	}
}

// AuditLog returns the audit history in append order.
func (l *Ledger) AuditLog() []types.AuditEntry {
	return l.sink.Entries()
}

// AuditPath returns the path of the audit file this ledger mirrors to.
func (l *Ledger) AuditPath() string {
	return l.sink.Path()
}

// Proposals returns a snapshot of the proposal collection.
func (l *Ledger) Proposals() map[string]types.Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.proposals)
}

// Promotions returns a snapshot of the promotion collection.
func (l *Ledger) Promotions() map[string]types.Promotion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.promotions)
}

// Evidence returns a snapshot of the evidence collection.
func (l *Ledger) Evidence() map[string]types.Evidence {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.evidence)
}

// Actions returns a snapshot of the action collection.
func (l *Ledger) Actions() map[string]types.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.actions)
}

// Facts returns a snapshot of the fact collection.
func (l *Ledger) Facts() map[string]types.Fact {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.facts)
}

// BridgeTriples returns a snapshot of the bridge index.
func (l *Ledger) BridgeTriples() map[string]types.BridgeTriple {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.bridges)
}

// Chains returns a snapshot of the chain collection.
func (l *Ledger) Chains() map[string]types.Chain {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.chains)
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
