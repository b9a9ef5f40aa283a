package consensus

import "time"

// Pacemaker tracks the current view, the last committed view, and the
// exponential-backoff timeout used to detect a stalled leader. Timeout
// duration is base_timeout * 2^(curr_view - last_committed_view): the
// longer consensus has gone without committing, the more patient each
// successive view becomes, so that a genuinely slow network doesn't cause
// a cascade of timeouts that keeps outrunning itself.
type Pacemaker struct {
	validators *ValidatorSet

	currView          ViewNumber
	lastCommittedView ViewNumber

	baseTimeout time.Duration
	// multiplier is recorded as given; the backoff base is fixed at 2 and
	// does not read it.
	multiplier float64
	deadline    time.Time
}

// NewPacemaker returns a Pacemaker for the given validator set, starting at
// view 0 with its timer armed for baseTimeout.
func NewPacemaker(validators *ValidatorSet, baseTimeout time.Duration, multiplier float64) *Pacemaker {
	pm := &Pacemaker{
		validators:  validators,
		baseTimeout: baseTimeout,
		multiplier:  multiplier,
	}
	pm.armTimer()
	return pm
}

// CurrentView returns the view the pacemaker believes is active.
func (pm *Pacemaker) CurrentView() ViewNumber {
	return pm.currView
}

// CurrentLeader returns the validator assigned to lead the current view.
func (pm *Pacemaker) CurrentLeader() NodeID {
	return pm.validators.LeaderForView(pm.currView)
}

// LeaderForView returns the validator assigned to lead an arbitrary view.
func (pm *Pacemaker) LeaderForView(view ViewNumber) NodeID {
	return pm.validators.LeaderForView(view)
}

// timeoutForView computes base_timeout * 2^(view - lastCommittedView),
// clamped so curr_view never precedes last_committed_view (a view can only
// regress relative to the commit frontier by staying at it).
func (pm *Pacemaker) timeoutForView(view ViewNumber) time.Duration {
	delta := int64(view) - int64(pm.lastCommittedView)
	if delta < 0 {
		delta = 0
	}
	scale := 1.0
	for i := int64(0); i < delta; i++ {
		scale *= 2
	}
	return time.Duration(float64(pm.baseTimeout) * scale)
}

func (pm *Pacemaker) armTimer() {
	pm.deadline = timeNow().Add(pm.timeoutForView(pm.currView))
}

// TimeRemaining returns how long until the current view's timer expires.
// A non-positive result means the view has already timed out.
func (pm *Pacemaker) TimeRemaining() time.Duration {
	return pm.deadline.Sub(timeNow())
}

// Expired reports whether the current view's timer has run out.
func (pm *Pacemaker) Expired() bool {
	return pm.TimeRemaining() <= 0
}

// AdvanceView moves to the next view after a timeout, and re-arms the
// timer using the new view's (larger) backoff.
func (pm *Pacemaker) AdvanceView() ViewNumber {
	pm.currView++
	pm.armTimer()
	return pm.currView
}

// FastForwardView jumps directly to view if it is ahead of the current
// view (e.g. on learning of a QC or NewView message for a later view); it
// is a no-op, including the timer, if view is not ahead — a stale or
// equal-view message must never postpone a legitimate timeout-driven view
// change.
func (pm *Pacemaker) FastForwardView(view ViewNumber) {
	if view > pm.currView {
		pm.currView = view
		pm.armTimer()
	}
}

// OnCommit records that a block at committedView has been committed,
// shrinking the backoff for subsequent views back toward the base
// timeout.
func (pm *Pacemaker) OnCommit(committedView ViewNumber) {
	if committedView > pm.lastCommittedView {
		pm.lastCommittedView = committedView
	}
}

// timeNow is a seam over time.Now so tests can control the clock; the
// consensus layer otherwise uses wall-clock time throughout.
var timeNow = time.Now
