package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies the kind of write submitted to the ledger.
type EventType string

const (
	EventProposalRecorded  EventType = "proposal-recorded"
	EventPromotionRecorded EventType = "promotion-recorded"
	EventEvidenceAttached  EventType = "evidence-attached"
	EventActionRecorded    EventType = "action-recorded"
	EventFactMaterialized  EventType = "fact-materialized"
	EventChainBuilt        EventType = "chain-built"
)

// EventTypes lists every recognized event type.
var EventTypes = []EventType{
	EventProposalRecorded,
	EventPromotionRecorded,
	EventEvidenceAttached,
	EventActionRecorded,
	EventFactMaterialized,
	EventChainBuilt,
}

// Event is the envelope every write travels in. The payload is kept as raw
// JSON so the audit trail records exactly what was submitted.
type Event struct {
	Type    EventType       `json:"type"`
	ID      string          `json:"id"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// AuditType classifies the outcome recorded for a write attempt.
type AuditType string

const (
	AuditSuccess             AuditType = "success"
	AuditValidationFailure   AuditType = "validation-failure"
	AuditAppendOnlyViolation AuditType = "append-only-violation"
	AuditBoundaryViolation   AuditType = "boundary-violation"
)

// IsFailure reports whether the audit type records a rejected write.
func (a AuditType) IsFailure() bool {
	return a != AuditSuccess
}

// AuditEntry is one line of the append-only audit log. Every write attempt,
// committed or rejected, produces exactly one entry.
type AuditEntry struct {
	AuditType AuditType    `json:"audit_type"`
	Event     Event        `json:"event"`
	Errors    []FieldError `json:"errors,omitempty"`
	At        time.Time    `json:"at"`
}

// ErrorKind is the taxonomy bucket of a structured field error.
type ErrorKind string

const (
	ErrMissing   ErrorKind = "missing"
	ErrInvalid   ErrorKind = "invalid"
	ErrDuplicate ErrorKind = "duplicate"
	ErrMismatch  ErrorKind = "mismatch"
	ErrUnknown   ErrorKind = "unknown"
)

// FieldError is a single structured validation or boundary error.
type FieldError struct {
	Field   string    `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

func (e FieldError) String() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s: %s)", e.Field, e.Message, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Kind)
}

// RejectError carries a rejected write back to the caller. The same errors
// appear in the audit entry emitted for the attempt. Rejection is final;
// corrections are resubmitted as new events.
type RejectError struct {
	Audit  AuditType
	Errors []FieldError
}

func (e *RejectError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("rejected (%s): %s", e.Audit, strings.Join(parts, "; "))
}

// Rejection unwraps err into a RejectError, or nil if err is not one.
func Rejection(err error) *RejectError {
	re, ok := err.(*RejectError)
	if !ok {
		return nil
	}
	return re
}

// ProposalStatus is the review state of a proposal.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusAccepted ProposalStatus = "accepted"
	StatusRejected ProposalStatus = "rejected"
)

// Proposal is a candidate claim, inherently fuzzy, produced by some upstream
// method (similarity search, an agent, a reviewer).
type Proposal struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	TargetID  string         `json:"target_id,omitempty"`
	Status    ProposalStatus `json:"status"`
	Score     float64        `json:"score"`
	Method    string         `json:"method"`
	Evidence  []any          `json:"evidence"`
	CreatedAt time.Time      `json:"created_at"`
}

// Promotion is an explicit reviewer decision to accept a proposal.
type Promotion struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	Kind       string    `json:"kind"`
	TargetID   string    `json:"target_id,omitempty"`
	DecidedBy  string    `json:"decided_by"`
	Rationale  string    `json:"rationale"`
	CreatedAt  time.Time `json:"created_at"`
}

// TargetType names the collection an evidence target lives in.
type TargetType string

const (
	TargetProposal  TargetType = "proposal"
	TargetPromotion TargetType = "promotion"
)

// EvidenceTarget points evidence at a stored proposal or promotion.
type EvidenceTarget struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id"`
}

// Evidence is a supporting attachment for a proposal or promotion.
type Evidence struct {
	ID        string         `json:"id"`
	Target    EvidenceTarget `json:"target"`
	Method    string         `json:"method"`
	Payload   []any          `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Action records reviewer or agent activity. Only ID, Type and CreatedAt are
// guaranteed; consumers must not rely on Actor or Note being present.
type Action struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KindBridgeTriple is the fact kind reserved for bridge triples.
const KindBridgeTriple = "bridge-triple"

// Fact is a materialized decision outcome. It records the decision to
// promote, not the promoted content itself.
type Fact struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Body        any       `json:"body,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	PromotionID string    `json:"promotion_id"`
}

// BridgeTriple is a fact of kind "bridge-triple" that warrants a sense-shift
// between concepts. It is stored both as a fact and in the bridge index.
type BridgeTriple struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Predicate string    `json:"predicate,omitempty"`
	Object    string    `json:"object,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StepType is the closed set of chain step variants.
type StepType string

const (
	StepArrow    StepType = "arrow"
	StepBridge   StepType = "bridge"
	StepProposal StepType = "proposal"
)

// ShiftGate is the warrant required on a sense-shift step.
type ShiftGate string

const (
	GateTypedArrow   ShiftGate = "typed-arrow"
	GateBridgeTriple ShiftGate = "bridge-triple"
)

// ChainStep is one hop in a justification chain. Shift marks a sense-shift;
// a shifted step must carry a Gate. A gate on an unshifted step is advisory.
type ChainStep struct {
	Type     StepType  `json:"type"`
	TargetID string    `json:"target_id"`
	Shift    bool      `json:"shift,omitempty"`
	Gate     ShiftGate `json:"gate,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Chain is an ordered sequence of hops justifying a derived claim, with the
// softness accounting computed at build time.
type Chain struct {
	ID              string      `json:"id"`
	CreatedAt       time.Time   `json:"created_at"`
	Steps           []ChainStep `json:"steps"`
	SoftnessTotal   float64     `json:"softness_total"`
	SoftnessAverage float64     `json:"softness_average"`
	SoftnessPerStep []float64   `json:"softness_per_step"`
}
