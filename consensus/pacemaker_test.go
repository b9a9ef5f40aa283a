package consensus

import (
	"testing"
	"time"
)

func TestPacemakerBackoffDoublesPerView(t *testing.T) {
	vs, _ := newTestValidatorSet(t, 4)
	pm := NewPacemaker(vs, 100*time.Millisecond, 2.0)

	if got := pm.timeoutForView(0); got != 100*time.Millisecond {
		t.Fatalf("timeout at view 0 = %v, want 100ms", got)
	}
	if got := pm.timeoutForView(3); got != 800*time.Millisecond {
		t.Fatalf("timeout at view 3 (committed=0) = %v, want 800ms", got)
	}

	pm.OnCommit(2)
	if got := pm.timeoutForView(3); got != 200*time.Millisecond {
		t.Fatalf("timeout at view 3 after committing view 2 = %v, want 200ms", got)
	}
}

func TestPacemakerLeaderRotation(t *testing.T) {
	vs, _ := newTestValidatorSet(t, 4)
	pm := NewPacemaker(vs, time.Second, 2.0)

	for v := ViewNumber(0); v < 8; v++ {
		want := NodeID(uint64(v) % 4)
		if got := pm.LeaderForView(v); got != want {
			t.Errorf("leader for view %d = %d, want %d", v, got, want)
		}
	}
}

func TestPacemakerFastForwardOnlyAdvances(t *testing.T) {
	vs, _ := newTestValidatorSet(t, 4)
	pm := NewPacemaker(vs, time.Second, 2.0)
	pm.AdvanceView()
	pm.AdvanceView() // now at view 2

	pm.FastForwardView(1) // behind current view: no-op on the view itself
	if pm.CurrentView() != 2 {
		t.Fatalf("fast-forward to a lower view regressed: got %d", pm.CurrentView())
	}

	pm.FastForwardView(5)
	if pm.CurrentView() != 5 {
		t.Fatalf("fast-forward to a higher view did not advance: got %d", pm.CurrentView())
	}
}
