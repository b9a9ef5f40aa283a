package consensus

import "fmt"

// SafetyState tracks the two pieces of state a replica must remember to
// enforce the safety rule across restarts within a single run: the highest
// view it has voted in (never vote twice in the same view, never vote
// backwards) and the locked QC (the QC two links back from the current head
// once three blocks have chained). The highest QC seen is the replica's
// generic QC, kept outside this type.
type SafetyState struct {
	lockedQC    *QuorumCertificate
	highestVote ViewNumber
	voted       bool
}

// NewSafetyState returns a SafetyState locked on the Genesis QC.
func NewSafetyState() *SafetyState {
	return &SafetyState{lockedQC: GenesisQC()}
}

// LockedQC returns the certificate the replica is currently locked on.
func (s *SafetyState) LockedQC() *QuorumCertificate {
	return s.lockedQC
}

// UpdateLockedQC replaces the locked QC if candidate is for a later view,
// matching the three-chain rule's "always extend the highest known
// justification" behavior. It never regresses.
func (s *SafetyState) UpdateLockedQC(candidate *QuorumCertificate) {
	if candidate != nil && candidate.View > s.lockedQC.View {
		s.lockedQC = candidate
	}
}

// extendsFromWithinThreeLinks reports whether block, walking up ParentHash
// links through store for at most three hops, reaches ancestor. It fails
// closed: a missing parent anywhere along the walk is treated as "does not
// extend", never as "don't know".
func extendsFromWithinThreeLinks(store *BlockStore, block *Block, ancestor Hash) bool {
	cur := block
	for hop := 0; hop < 3; hop++ {
		if cur.Hash() == ancestor {
			return true
		}
		if cur.IsGenesis() {
			return false
		}
		parent, err := store.Parent(cur)
		if err != nil {
			return false
		}
		cur = parent
	}
	return cur.Hash() == ancestor
}

// SafeNode implements the HotStuff safety predicate: a replica may vote for
// block, justified by qc, only if either
//
//  1. block extends the currently locked block within three parent links
//     (safety: never contradict a certificate that may already have
//     committed on other replicas), or
//  2. qc's view is strictly greater than the locked QC's view (liveness: a
//     later quorum supersedes an older lock even if the chain shape
//     diverged).
//
// A replica that has already voted in block.View, or in a later view, must
// not vote again (monotonic view progress).
func (s *SafetyState) SafeNode(store *BlockStore, block *Block, qc *QuorumCertificate) error {
	if s.voted && block.View <= s.highestVote {
		return fmt.Errorf("already voted in view %d, refusing to vote again in view %d", s.highestVote, block.View)
	}
	if qc == nil {
		return fmt.Errorf("block at view %d carries no justify QC", block.View)
	}

	if extendsFromWithinThreeLinks(store, block, s.lockedQC.BlockHash) {
		return nil
	}
	if qc.View > s.lockedQC.View {
		return nil
	}
	return fmt.Errorf("block at view %d neither extends the locked block %s nor supersedes its view", block.View, s.lockedQC.BlockHash)
}

// RecordVote marks that the replica has voted for a block at view,
// enforcing SafeNode's monotonic-voting invariant going forward.
func (s *SafetyState) RecordVote(view ViewNumber) {
	s.voted = true
	s.highestVote = view
}
