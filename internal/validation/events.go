package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
)

// Allowed key sets per payload. Anything outside these is collected into a
// single unknown-fields error rather than silently dropped.
var (
	envelopeKeys  = keySet("type", "id", "at", "payload")
	proposalKeys  = keySet("id", "kind", "target_id", "status", "score", "method", "evidence", "created_at")
	promotionKeys = keySet("id", "proposal_id", "kind", "target_id", "decided_by", "rationale", "created_at")
	evidenceKeys  = keySet("id", "target", "method", "payload", "created_at")
	actionKeys    = keySet("id", "type", "actor", "note", "created_at")
	factKeys      = keySet("id", "kind", "body", "promotion_id", "created_at")
	chainKeys     = keySet("id", "steps", "created_at")
	stepKeys      = keySet("type", "target_id", "shift", "gate", "notes")
)

func keySet(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// ValidateEvent runs the full structural validation of an event. It is a
// pure function of the event payload and performs no IO. All errors are
// returned at once; an empty slice means the event is well-formed.
func ValidateEvent(ev types.Event) []types.FieldError {
	c := &Collector{}

	known := false
	for _, t := range types.EventTypes {
		if ev.Type == t {
			known = true
			break
		}
	}
	if !known {
		c.AddDetail("type", types.ErrInvalid, "unrecognized event type", string(ev.Type))
	}
	if strings.TrimSpace(ev.ID) == "" {
		c.Add("id", types.ErrMissing, "is required")
	}
	if ev.At.IsZero() {
		c.Add("at", types.ErrMissing, "is required")
	}

	if len(ev.Payload) == 0 {
		c.Add("payload", types.ErrMissing, "is required")
		return c.Errors()
	}
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		c.Add("payload", types.ErrInvalid, "must be a JSON object")
		return c.Errors()
	}
	if !known {
		return c.Errors()
	}

	switch ev.Type {
	case types.EventProposalRecorded:
		validateProposal(c, m)
	case types.EventPromotionRecorded:
		validatePromotion(c, m)
	case types.EventEvidenceAttached:
		validateEvidence(c, m)
	case types.EventActionRecorded:
		validateAction(c, m)
	case types.EventFactMaterialized:
		validateFact(c, m)
	case types.EventChainBuilt:
		validateChain(c, m)
	}
	return c.Errors()
}

func validateProposal(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	requireString(c, m, "kind")
	optionalString(c, m, "target_id")
	requireEnum(c, m, "status", []string{
		string(types.StatusPending), string(types.StatusAccepted), string(types.StatusRejected),
	})
	requireRange(c, m, "score", 0, 1)
	requireString(c, m, "method")
	requireCollection(c, m, "evidence")
	requireTimestamp(c, m, "created_at")
	rejectUnknown(c, m, proposalKeys)
}

func validatePromotion(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	requireString(c, m, "proposal_id")
	requireString(c, m, "kind")
	optionalString(c, m, "target_id")
	requireString(c, m, "decided_by")
	requireString(c, m, "rationale")
	requireTimestamp(c, m, "created_at")
	rejectUnknown(c, m, promotionKeys)
}

func validateEvidence(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	validateEvidenceTarget(c, m)
	requireString(c, m, "method")
	requireCollection(c, m, "payload")
	requireTimestamp(c, m, "created_at")
	rejectUnknown(c, m, evidenceKeys)
}

func validateEvidenceTarget(c *Collector, m map[string]any) {
	v, ok := m["target"]
	if !ok {
		c.Add("target", types.ErrMissing, "is required")
		return
	}
	t, ok := v.(map[string]any)
	if !ok {
		c.Add("target", types.ErrInvalid, "must be an object with type and id")
		return
	}
	if _, present := t["type"]; !present {
		c.Add("target.type", types.ErrMissing, "is required")
	} else if tt, ok := t["type"].(string); !ok ||
		(tt != string(types.TargetProposal) && tt != string(types.TargetPromotion)) {
		c.AddDetail("target.type", types.ErrInvalid, "must be one of: proposal, promotion", tt)
	}
	if _, present := t["id"]; !present {
		c.Add("target.id", types.ErrMissing, "is required")
	} else if id, ok := t["id"].(string); !ok || strings.TrimSpace(id) == "" {
		c.Add("target.id", types.ErrInvalid, "must be a non-blank string")
	}
	rejectUnknown(c, t, keySet("type", "id"))
}

func validateAction(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	requireString(c, m, "type")
	// actor and note are optional; downstream consumers must not rely on
	// them being present.
	optionalString(c, m, "actor")
	optionalString(c, m, "note")
	requireTimestamp(c, m, "created_at")
	rejectUnknown(c, m, actionKeys)
}

func validateFact(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	requireString(c, m, "kind")
	optionalString(c, m, "promotion_id")
	requireTimestamp(c, m, "created_at")
	rejectUnknown(c, m, factKeys)
}

func validateChain(c *Collector, m map[string]any) {
	requireString(c, m, "id")
	requireTimestamp(c, m, "created_at")

	v, ok := m["steps"]
	if !ok {
		c.Add("steps", types.ErrMissing, "is required")
	} else if steps, isList := v.([]any); !isList {
		c.Add("steps", types.ErrInvalid, "must be a list of steps")
	} else if len(steps) == 0 {
		c.Add("steps", types.ErrInvalid, "must not be empty")
	} else {
		for i, sv := range steps {
			validateStep(c, i, sv)
		}
	}
	rejectUnknown(c, m, chainKeys)
}

func validateStep(c *Collector, i int, v any) {
	step, ok := v.(map[string]any)
	if !ok {
		c.AddDetail("step/type", types.ErrInvalid, "step must be an object", stepAt(i))
		return
	}
	requireEnum(c, step, "type", []string{
		string(types.StepArrow), string(types.StepBridge), string(types.StepProposal),
	})
	requireString(c, step, "target_id")
	optionalString(c, step, "notes")

	shift := false
	if sv, present := step["shift"]; present {
		b, isBool := sv.(bool)
		if !isBool {
			c.AddDetail("step/shift", types.ErrInvalid, "must be a boolean", stepAt(i))
		}
		shift = isBool && b
	}
	gate, hasGate := step["gate"].(string)
	if _, present := step["gate"]; present && !hasGate {
		c.AddDetail("step/gate", types.ErrInvalid, "must be a string", stepAt(i))
	}
	if shift {
		// The sense-shift gate: a shifted step is valid only with a warrant.
		if !hasGate || !validGate(gate) {
			c.AddDetail("step/gate", types.ErrMissing,
				"sense-shift step requires a gate of typed-arrow or bridge-triple", stepAt(i))
		}
	} else if hasGate && !validGate(gate) {
		// Gates on unshifted steps are advisory but still well-typed.
		c.AddDetail("step/gate", types.ErrInvalid,
			"must be one of: typed-arrow, bridge-triple", stepAt(i))
	}
	rejectUnknown(c, step, stepKeys)
}

func validGate(g string) bool {
	return g == string(types.GateTypedArrow) || g == string(types.GateBridgeTriple)
}

func stepAt(i int) string {
	return fmt.Sprintf("step %d", i)
}

// DecodeEvent parses a raw JSON event envelope, rejecting unknown envelope
// keys. The payload itself is validated later by ValidateEvent.
func DecodeEvent(data []byte) (types.Event, []types.FieldError) {
	c := &Collector{}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		c.Add("event", types.ErrInvalid, "must be a JSON object")
		return types.Event{}, c.Errors()
	}
	var unknown []string
	for k := range m {
		if _, ok := envelopeKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		c.AddDetail("unknown-fields", types.ErrUnknown,
			"envelope carries unrecognized fields", strings.Join(unknown, ", "))
	}

	var ev types.Event
	if v, ok := m["type"].(string); ok {
		ev.Type = types.EventType(v)
	}
	if v, ok := m["id"].(string); ok {
		ev.ID = v
	}
	if v, ok := m["at"].(string); ok {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AddDetail("at", types.ErrInvalid, "must be an RFC 3339 timestamp", v)
		} else {
			ev.At = at
		}
	}
	if v, ok := m["payload"]; ok {
		raw, err := json.Marshal(v)
		if err == nil {
			ev.Payload = raw
		}
	}
	return ev, c.Errors()
}
