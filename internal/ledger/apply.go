package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
	"github.com/hyperengineering/sidecar/internal/validation"
)

// Apply routes an already-decoded event through the matching record
// operation and returns the committed entity id. It exists so transports
// (the CLI, or anything mapping the surface 1:1) can submit raw events
// without losing the audit trail: the submitted payload, with only the
// defaults from fillPayloadDefaults added, is what gets validated and
// audited.
func (l *Ledger) Apply(ev types.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.ID == "" {
		ev.ID = l.ids.EventID()
	}
	if ev.At.IsZero() {
		ev.At = l.clock.Now()
	}
	ev.Payload = l.fillPayloadDefaults(ev)

	if errs := validation.ValidateEvent(ev); len(errs) > 0 {
		return "", l.reject(types.AuditValidationFailure, ev, errs)
	}

	switch ev.Type {
	case types.EventProposalRecorded:
		var p types.Proposal
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		return p.ID, l.commitProposal(ev, p)
	case types.EventPromotionRecorded:
		var p types.Promotion
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		return p.ID, l.commitPromotion(ev, p)
	case types.EventEvidenceAttached:
		var e types.Evidence
		if err := json.Unmarshal(ev.Payload, &e); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		return e.ID, l.commitEvidence(ev, e)
	case types.EventActionRecorded:
		var a types.Action
		if err := json.Unmarshal(ev.Payload, &a); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		return a.ID, l.commitAction(ev, a)
	case types.EventFactMaterialized:
		var f types.Fact
		if err := json.Unmarshal(ev.Payload, &f); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		return f.ID, l.commitFact(ev, f)
	case types.EventChainBuilt:
		var in chainInput
		if err := json.Unmarshal(ev.Payload, &in); err != nil {
			return "", l.rejectDecode(ev, err)
		}
		c := types.Chain{ID: in.ID, CreatedAt: in.CreatedAt, Steps: in.Steps}
		return c.ID, l.commitChain(ev, &c)
	}
	return "", fmt.Errorf("unroutable event type %q", ev.Type)
}

// fillPayloadDefaults mirrors what the typed operations do for direct
// callers: created-at is stamped at write time when omitted, and chains get
// a generated id. Anything that is not an object is left for validation to
// reject.
func (l *Ledger) fillPayloadDefaults(ev types.Event) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil || m == nil {
		return ev.Payload
	}
	changed := false
	if _, ok := m["created_at"]; !ok {
		m["created_at"] = l.clock.Now().Format(time.RFC3339Nano)
		changed = true
	}
	if ev.Type == types.EventChainBuilt {
		if _, ok := m["id"]; !ok {
			m["id"] = l.ids.NewID("chain")
			changed = true
		}
	}
	if !changed {
		return ev.Payload
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ev.Payload
	}
	return raw
}

func (l *Ledger) rejectDecode(ev types.Event, err error) error {
	return l.reject(types.AuditValidationFailure, ev, []types.FieldError{{
		Field:   "payload",
		Kind:    types.ErrInvalid,
		Message: "payload does not decode into the event's entity",
		Detail:  err.Error(),
	}})
}
