package ledger

import (
	"fmt"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
)

// stepSoftness fixes the per-step trust weight. Lower is harder: arrows are
// grounded, bridges warrant a sense-shift, proposals are still fuzzy.
var stepSoftness = map[types.StepType]float64{
	types.StepArrow:    0.0,
	types.StepBridge:   0.5,
	types.StepProposal: 1.0,
}

// chainInput is the event payload for chain-built: the submitted chain
// before softness is computed. The stored record merges the softness fields.
type chainInput struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Steps     []types.ChainStep `json:"steps"`
}

// BuildChain validates and stores a justification chain, computing its
// softness score. A missing id is generated.
func (l *Ledger) BuildChain(c types.Chain) (types.Chain, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c.ID == "" {
		c.ID = l.ids.NewID("chain")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = l.clock.Now()
	}
	ev, err := l.newEvent(types.EventChainBuilt, chainInput{ID: c.ID, CreatedAt: c.CreatedAt, Steps: c.Steps})
	if err != nil {
		return types.Chain{}, err
	}
	if err := l.commitChain(ev, &c); err != nil {
		return types.Chain{}, err
	}
	return c, nil
}

// commitChain stores the chain pointed to by c with softness merged in.
func (l *Ledger) commitChain(ev types.Event, c *types.Chain) error {
	return l.commit(ev,
		func() *types.FieldError { return l.chainBoundary(c.Steps) },
		func() *types.FieldError {
			if _, ok := l.chains[c.ID]; ok {
				return duplicate("chain_id", c.ID)
			}
			return nil
		},
		func() {
			*c = withSoftness(*c)
			l.chains[c.ID] = *c
		},
	)
}

// chainBoundary cross-checks step targets against the store. Proposal steps
// must resolve to stored proposals and bridge steps to stored bridge
// triples. Arrow steps are never cross-checked: arrows are external to this
// core.
func (l *Ledger) chainBoundary(steps []types.ChainStep) *types.FieldError {
	for i, s := range steps {
		switch s.Type {
		case types.StepProposal:
			if _, ok := l.proposals[s.TargetID]; !ok {
				fe := notFound("step/target_id", "proposal", s.TargetID)
				fe.Detail = fmt.Sprintf("step %d: %s", i, s.TargetID)
				return fe
			}
		case types.StepBridge:
			if _, ok := l.bridges[s.TargetID]; !ok {
				fe := notFound("step/target_id", "bridge triple", s.TargetID)
				fe.Detail = fmt.Sprintf("step %d: %s", i, s.TargetID)
				return fe
			}
		case types.StepArrow:
		}
	}
	return nil
}

// withSoftness computes the softness accounting for a chain. The zero-step
// average branch is unreachable behind validation but kept defensively.
func withSoftness(c types.Chain) types.Chain {
	per := make([]float64, len(c.Steps))
	total := 0.0
	for i, s := range c.Steps {
		w := stepSoftness[s.Type]
		per[i] = w
		total += w
	}
	c.SoftnessTotal = total
	c.SoftnessAverage = 0
	if len(c.Steps) > 0 {
		c.SoftnessAverage = total / float64(len(c.Steps))
	}
	c.SoftnessPerStep = per
	return c
}
