package ledger

import (
	"encoding/json"

	"github.com/hyperengineering/sidecar/internal/audit"
	"github.com/hyperengineering/sidecar/internal/types"
)

// Open constructs a ledger and replays an existing audit file into memory.
// The audit log is the source of truth: replaying its success entries
// reproduces exactly the committed state, including anything a crashed
// process audited but never got to serve. Rejected attempts replay into the
// audit history only.
func Open(opts Options) (*Ledger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	entries, err := audit.ReadFile(l.sink.Path())
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.AuditType.IsFailure() {
			continue
		}
		l.restore(e.Event)
	}
	l.sink.Restore(entries)
	return l, nil
}

// restore applies one committed event to the in-memory collections without
// re-validating or re-auditing. Entries that no longer decode are skipped
// with a warning rather than poisoning the whole replay.
func (l *Ledger) restore(ev types.Event) {
	switch ev.Type {
	case types.EventProposalRecorded:
		var p types.Proposal
		if l.decodeRestored(ev, &p) {
			l.proposals[p.ID] = p
		}
	case types.EventPromotionRecorded:
		var p types.Promotion
		if l.decodeRestored(ev, &p) {
			l.promotions[p.ID] = p
		}
	case types.EventEvidenceAttached:
		var e types.Evidence
		if l.decodeRestored(ev, &e) {
			l.evidence[e.ID] = e
		}
	case types.EventActionRecorded:
		var a types.Action
		if l.decodeRestored(ev, &a) {
			l.actions[a.ID] = a
		}
	case types.EventFactMaterialized:
		var f types.Fact
		if l.decodeRestored(ev, &f) {
			l.facts[f.ID] = f
			if f.Kind == types.KindBridgeTriple {
				l.bridges[f.ID] = bridgeFromFact(f)
			}
		}
	case types.EventChainBuilt:
		var in chainInput
		if l.decodeRestored(ev, &in) {
			// Softness is deterministic, so it is recomputed rather than
			// persisted in the event payload.
			c := withSoftness(types.Chain{ID: in.ID, CreatedAt: in.CreatedAt, Steps: in.Steps})
			l.chains[c.ID] = c
		}
	default:
		l.log.Warn("replay: unrecognized event type", "event_type", ev.Type, "event_id", ev.ID)
	}
}

func (l *Ledger) decodeRestored(ev types.Event, dst any) bool {
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		l.log.Warn("replay: undecodable committed event",
			"event_type", ev.Type, "event_id", ev.ID, "error", err)
		return false
	}
	return true
}
