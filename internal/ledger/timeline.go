package ledger

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
)

// TimelineStatus labels a timeline event as committed or rejected.
type TimelineStatus string

const (
	TimelineSuccess TimelineStatus = "success"
	TimelineFailure TimelineStatus = "failure"
)

// TimelineEvent is one entry in an entity's reconstructed history.
type TimelineEvent struct {
	Status    TimelineStatus  `json:"status"`
	AuditType types.AuditType `json:"audit_type"`
	At        time.Time       `json:"at"`
	Event     types.Event     `json:"event"`
}

// EventRefs extracts every entity id an event's payload touches: the
// payload's own id, referenced proposal/promotion ids, an evidence target
// id, and each chain step's target id. This is the direct "touches"
// relation: FailureReasons uses it as is, and Timeline closes it
// transitively over committed records.
func EventRefs(ev types.Event) []string {
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		return nil
	}
	var refs []string
	addString := func(v any) {
		if s, ok := v.(string); ok && s != "" {
			refs = append(refs, s)
		}
	}
	addString(m["id"])
	addString(m["proposal_id"])
	addString(m["promotion_id"])
	if target, ok := m["target"].(map[string]any); ok {
		addString(target["id"])
	}
	if steps, ok := m["steps"].([]any); ok {
		for _, sv := range steps {
			if step, ok := sv.(map[string]any); ok {
				addString(step["target_id"])
			}
		}
	}
	return refs
}

func eventTouches(ev types.Event, id string) bool {
	for _, ref := range EventRefs(ev) {
		if ref == id {
			return true
		}
	}
	return false
}

// Timeline reconstructs the chronological history of every write attempt
// related to the given id. The relation is closed transitively over
// committed records — a fact linked to a promotion linked to a proposal
// appears in the proposal's timeline — while rejected attempts are included
// when they touch the related set but never extend it. Committed writes
// sort by the entity's created-at; rejected attempts sort by the audit
// timestamp; ties keep audit append order.
func (l *Ledger) Timeline(id string) []TimelineEvent {
	entries := l.sink.Entries()
	related := map[string]bool{id: true}
	include := make([]bool, len(entries))

	for changed := true; changed; {
		changed = false
		for i, e := range entries {
			if include[i] {
				continue
			}
			refs := EventRefs(e.Event)
			touches := false
			for _, r := range refs {
				if related[r] {
					touches = true
					break
				}
			}
			if !touches {
				continue
			}
			include[i] = true
			changed = true
			if !e.AuditType.IsFailure() {
				for _, r := range refs {
					related[r] = true
				}
			}
		}
	}

	var out []TimelineEvent
	for i, e := range entries {
		if !include[i] {
			continue
		}
		te := TimelineEvent{AuditType: e.AuditType, At: e.At, Event: e.Event}
		if e.AuditType.IsFailure() {
			te.Status = TimelineFailure
		} else {
			te.Status = TimelineSuccess
			if at, ok := payloadCreatedAt(e.Event); ok {
				te.At = at
			}
		}
		out = append(out, te)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

// FailureReasons returns the failure audit entries touching the given id,
// preserving audit order.
func (l *Ledger) FailureReasons(id string) []types.AuditEntry {
	var out []types.AuditEntry
	for _, e := range l.sink.Entries() {
		if !e.AuditType.IsFailure() {
			continue
		}
		if eventTouches(e.Event, id) {
			out = append(out, e)
		}
	}
	return out
}

func payloadCreatedAt(ev types.Event) (time.Time, bool) {
	var m struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(ev.Payload, &m); err != nil || m.CreatedAt.IsZero() {
		return time.Time{}, false
	}
	return m.CreatedAt, true
}
