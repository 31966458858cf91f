package ledger

import (
	"math"
	"testing"

	"github.com/hyperengineering/sidecar/internal/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Chain softness scoring: arrow 0.0, bridge 0.5, proposal 1.0.
func TestBuildChain_Softness(t *testing.T) {
	l := newTestLedger(t)
	mustRecordProposal(t, l, proposal("p-2"))
	recordBridge(t, l, "b-1")

	c, err := l.BuildChain(types.Chain{
		ID: "c-1",
		Steps: []types.ChainStep{
			{Type: types.StepArrow, TargetID: "a-1"},
			{Type: types.StepBridge, TargetID: "b-1"},
			{Type: types.StepProposal, TargetID: "p-2"},
		},
	})
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}
	if !almostEqual(c.SoftnessTotal, 1.5) {
		t.Errorf("softness total = %v, want 1.5", c.SoftnessTotal)
	}
	if !almostEqual(c.SoftnessAverage, 0.5) {
		t.Errorf("softness average = %v, want 0.5", c.SoftnessAverage)
	}
	wantPer := []float64{0.0, 0.5, 1.0}
	if len(c.SoftnessPerStep) != len(wantPer) {
		t.Fatalf("per-step len = %d, want %d", len(c.SoftnessPerStep), len(wantPer))
	}
	for i, w := range wantPer {
		if !almostEqual(c.SoftnessPerStep[i], w) {
			t.Errorf("per-step[%d] = %v, want %v", i, c.SoftnessPerStep[i], w)
		}
	}

	// The stored record carries the same totals.
	stored, ok := l.Chains()["c-1"]
	if !ok {
		t.Fatal("chain missing from store")
	}
	if !almostEqual(stored.SoftnessTotal, 1.5) || !almostEqual(stored.SoftnessAverage, 0.5) {
		t.Errorf("stored softness = %v/%v, want 1.5/0.5", stored.SoftnessTotal, stored.SoftnessAverage)
	}

	// The referenced proposal's timeline picks up the chain build.
	found := false
	for _, te := range l.Timeline("p-2") {
		if te.Event.Type == types.EventChainBuilt {
			found = true
		}
	}
	if !found {
		t.Error("Timeline(p-2) does not contain chain-built")
	}
}

// The sense-shift gate: a shifted step with a warrant commits, and a shifted
// step without one fails validation.
func TestBuildChain_SenseShiftGate(t *testing.T) {
	l := newTestLedger(t)
	recordBridge(t, l, "b-1")

	t.Run("shift with gate", func(t *testing.T) {
		_, err := l.BuildChain(types.Chain{
			ID: "c-gated",
			Steps: []types.ChainStep{
				{Type: types.StepBridge, TargetID: "b-1", Shift: true, Gate: types.GateTypedArrow},
			},
		})
		if err != nil {
			t.Fatalf("BuildChain() error = %v", err)
		}
	})

	t.Run("shift without gate", func(t *testing.T) {
		_, err := l.BuildChain(types.Chain{
			ID: "c-ungated",
			Steps: []types.ChainStep{
				{Type: types.StepBridge, TargetID: "b-1", Shift: true},
			},
		})
		wantReject(t, err, types.AuditValidationFailure, "step/gate", types.ErrMissing)
	})
}

func TestBuildChain_Boundaries(t *testing.T) {
	l := newTestLedger(t)
	mustRecordProposal(t, l, proposal("p-1"))
	recordBridge(t, l, "b-1")

	t.Run("arrow targets are never cross-checked", func(t *testing.T) {
		if _, err := l.BuildChain(types.Chain{
			ID:    "c-arrows",
			Steps: []types.ChainStep{{Type: types.StepArrow, TargetID: "never-stored"}},
		}); err != nil {
			t.Fatalf("BuildChain() error = %v", err)
		}
	})

	t.Run("unknown proposal step", func(t *testing.T) {
		_, err := l.BuildChain(types.Chain{
			ID:    "c-noprop",
			Steps: []types.ChainStep{{Type: types.StepProposal, TargetID: "p-9"}},
		})
		wantReject(t, err, types.AuditBoundaryViolation, "step/target_id", types.ErrMissing)
	})

	t.Run("unknown bridge step", func(t *testing.T) {
		_, err := l.BuildChain(types.Chain{
			ID:    "c-nobridge",
			Steps: []types.ChainStep{{Type: types.StepBridge, TargetID: "b-9"}},
		})
		wantReject(t, err, types.AuditBoundaryViolation, "step/target_id", types.ErrMissing)
	})

	t.Run("plain fact is not a bridge", func(t *testing.T) {
		mustRecordPromotion(t, l, promotion("pr-f", "p-1"))
		if _, err := l.RecordFact(types.Fact{ID: "f-1", Kind: "claim", PromotionID: "pr-f"}); err != nil {
			t.Fatalf("RecordFact() error = %v", err)
		}
		_, err := l.BuildChain(types.Chain{
			ID:    "c-factstep",
			Steps: []types.ChainStep{{Type: types.StepBridge, TargetID: "f-1"}},
		})
		wantReject(t, err, types.AuditBoundaryViolation, "step/target_id", types.ErrMissing)
	})
}

func TestBuildChain_GeneratesID(t *testing.T) {
	l := newTestLedger(t)
	mustRecordProposal(t, l, proposal("p-1"))

	c, err := l.BuildChain(types.Chain{
		Steps: []types.ChainStep{{Type: types.StepProposal, TargetID: "p-1"}},
	})
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}
	if c.ID == "" {
		t.Fatal("BuildChain() left id empty")
	}
	if _, ok := l.Chains()[c.ID]; !ok {
		t.Errorf("generated chain id %q not in store", c.ID)
	}
}

func TestBuildChain_Duplicate(t *testing.T) {
	l := newTestLedger(t)
	mustRecordProposal(t, l, proposal("p-1"))

	steps := []types.ChainStep{{Type: types.StepProposal, TargetID: "p-1"}}
	if _, err := l.BuildChain(types.Chain{ID: "c-1", Steps: steps}); err != nil {
		t.Fatalf("first BuildChain() error = %v", err)
	}
	_, err := l.BuildChain(types.Chain{ID: "c-1", Steps: steps})
	wantReject(t, err, types.AuditAppendOnlyViolation, "chain_id", types.ErrDuplicate)
}

func TestBuildChain_EmptySteps(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.BuildChain(types.Chain{ID: "c-1", Steps: []types.ChainStep{}})
	wantReject(t, err, types.AuditValidationFailure, "steps", types.ErrInvalid)
}

func TestWithSoftness_EmptyDefensive(t *testing.T) {
	// Unreachable behind validation, kept defensively.
	c := withSoftness(types.Chain{})
	if c.SoftnessTotal != 0 || c.SoftnessAverage != 0 {
		t.Errorf("softness = %v/%v, want 0/0", c.SoftnessTotal, c.SoftnessAverage)
	}
}
