package ledger

import (
	"encoding/json"

	"github.com/hyperengineering/sidecar/internal/types"
)

// RecordProposal stores a candidate claim.
func (l *Ledger) RecordProposal(p types.Proposal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = l.clock.Now()
	}
	if p.Evidence == nil {
		p.Evidence = []any{}
	}
	ev, err := l.newEvent(types.EventProposalRecorded, p)
	if err != nil {
		return "", err
	}
	return p.ID, l.commitProposal(ev, p)
}

func (l *Ledger) commitProposal(ev types.Event, p types.Proposal) error {
	return l.commit(ev,
		nil,
		func() *types.FieldError {
			if _, ok := l.proposals[p.ID]; ok {
				return duplicate("proposal_id", p.ID)
			}
			return nil
		},
		func() { l.proposals[p.ID] = p },
	)
}

// RecordPromotion stores an explicit decision over an existing proposal.
func (l *Ledger) RecordPromotion(p types.Promotion) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = l.clock.Now()
	}
	ev, err := l.newEvent(types.EventPromotionRecorded, p)
	if err != nil {
		return "", err
	}
	return p.ID, l.commitPromotion(ev, p)
}

func (l *Ledger) commitPromotion(ev types.Event, p types.Promotion) error {
	return l.commit(ev,
		func() *types.FieldError {
			if _, ok := l.proposals[p.ProposalID]; !ok {
				return notFound("proposal_id", "proposal", p.ProposalID)
			}
			return nil
		},
		func() *types.FieldError {
			if _, ok := l.promotions[p.ID]; ok {
				return duplicate("promotion_id", p.ID)
			}
			return nil
		},
		func() { l.promotions[p.ID] = p },
	)
}

// RecordEvidence attaches supporting payload to a stored proposal or
// promotion.
func (l *Ledger) RecordEvidence(e types.Evidence) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock.Now()
	}
	if e.Payload == nil {
		e.Payload = []any{}
	}
	ev, err := l.newEvent(types.EventEvidenceAttached, e)
	if err != nil {
		return "", err
	}
	return e.ID, l.commitEvidence(ev, e)
}

func (l *Ledger) commitEvidence(ev types.Event, e types.Evidence) error {
	return l.commit(ev,
		func() *types.FieldError {
			switch e.Target.Type {
			case types.TargetProposal:
				if _, ok := l.proposals[e.Target.ID]; !ok {
					return notFound("target.id", "proposal", e.Target.ID)
				}
			case types.TargetPromotion:
				if _, ok := l.promotions[e.Target.ID]; !ok {
					return notFound("target.id", "promotion", e.Target.ID)
				}
			}
			return nil
		},
		func() *types.FieldError {
			if _, ok := l.evidence[e.ID]; ok {
				return duplicate("evidence_id", e.ID)
			}
			return nil
		},
		func() { l.evidence[e.ID] = e },
	)
}

// RecordAction stores reviewer or agent activity.
func (l *Ledger) RecordAction(a types.Action) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.clock.Now()
	}
	ev, err := l.newEvent(types.EventActionRecorded, a)
	if err != nil {
		return "", err
	}
	return a.ID, l.commitAction(ev, a)
}

func (l *Ledger) commitAction(ev types.Event, a types.Action) error {
	return l.commit(ev,
		nil,
		func() *types.FieldError {
			if _, ok := l.actions[a.ID]; ok {
				return duplicate("action_id", a.ID)
			}
			return nil
		},
		func() { l.actions[a.ID] = a },
	)
}

// RecordFact materializes a decision outcome. The fact must reference a
// stored promotion, and when the promotion declares a kind the fact's kind
// must match it.
func (l *Ledger) RecordFact(f types.Fact) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f.CreatedAt.IsZero() {
		f.CreatedAt = l.clock.Now()
	}
	ev, err := l.newEvent(types.EventFactMaterialized, f)
	if err != nil {
		return "", err
	}
	return f.ID, l.commitFact(ev, f)
}

func (l *Ledger) factBoundary(f types.Fact) *types.FieldError {
	if f.PromotionID == "" {
		return &types.FieldError{
			Field:   "promotion_id",
			Kind:    types.ErrMissing,
			Message: "a fact requires an accompanying promotion id",
		}
	}
	promo, ok := l.promotions[f.PromotionID]
	if !ok {
		return notFound("promotion_id", "promotion", f.PromotionID)
	}
	if promo.Kind != "" && promo.Kind != f.Kind {
		return &types.FieldError{
			Field:   "fact_kind",
			Kind:    types.ErrMismatch,
			Message: "fact kind must match the promotion kind",
			Detail:  f.Kind + " != " + promo.Kind,
		}
	}
	return nil
}

func (l *Ledger) commitFact(ev types.Event, f types.Fact) error {
	return l.commit(ev,
		func() *types.FieldError { return l.factBoundary(f) },
		func() *types.FieldError {
			if _, ok := l.facts[f.ID]; ok {
				return duplicate("fact_id", f.ID)
			}
			return nil
		},
		func() {
			l.facts[f.ID] = f
			if f.Kind == types.KindBridgeTriple {
				l.bridges[f.ID] = bridgeFromFact(f)
			}
		},
	)
}

// RecordBridgeTriple materializes a bridge triple: a fact of kind
// bridge-triple plus an entry in the bridge index. Both writes share one
// pathway; if the fact write fails the bridge write fails identically.
func (l *Ledger) RecordBridgeTriple(bt types.BridgeTriple, promotionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bt.CreatedAt.IsZero() {
		bt.CreatedAt = l.clock.Now()
	}
	f := types.Fact{
		ID:          bt.ID,
		Kind:        types.KindBridgeTriple,
		Body:        bt,
		CreatedAt:   bt.CreatedAt,
		PromotionID: promotionID,
	}
	ev, err := l.newEvent(types.EventFactMaterialized, f)
	if err != nil {
		return "", err
	}
	return bt.ID, l.commitFact(ev, f)
}

// bridgeFromFact recovers the bridge triple carried in a fact body. Bodies
// arriving from JSON are generic maps; bodies built in-process are already
// typed.
func bridgeFromFact(f types.Fact) types.BridgeTriple {
	bt := types.BridgeTriple{ID: f.ID, CreatedAt: f.CreatedAt}
	switch body := f.Body.(type) {
	case types.BridgeTriple:
		bt = body
	case map[string]any:
		raw, err := json.Marshal(body)
		if err == nil {
			_ = json.Unmarshal(raw, &bt)
		}
	}
	bt.ID = f.ID
	if bt.CreatedAt.IsZero() {
		bt.CreatedAt = f.CreatedAt
	}
	return bt
}
