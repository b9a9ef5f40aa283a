package consensus

import (
	"fmt"

	"github.com/tolelom/tolchain/crypto"
)

// NodeID identifies a validator within a ValidatorSet by its position, used
// both for leader rotation (view mod n) and as the QC signer identity.
type NodeID uint32

// ValidatorSet is the fixed, ordered list of validators participating in
// consensus. Membership and ordering are set once at genesis and never
// change; there is no reconfiguration in this design.
type ValidatorSet struct {
	ids  []NodeID
	keys map[NodeID]crypto.PublicKey
}

// NewValidatorSet builds a ValidatorSet from an ordered list of public keys.
// NodeID i names the validator at index i.
func NewValidatorSet(pubkeys []crypto.PublicKey) *ValidatorSet {
	vs := &ValidatorSet{
		ids:  make([]NodeID, len(pubkeys)),
		keys: make(map[NodeID]crypto.PublicKey, len(pubkeys)),
	}
	for i, pk := range pubkeys {
		id := NodeID(i)
		vs.ids[i] = id
		vs.keys[id] = pk
	}
	return vs
}

// Len returns the number of validators, n, in the set.
func (vs *ValidatorSet) Len() int {
	return len(vs.ids)
}

// PublicKey returns the public key registered for id, if any.
func (vs *ValidatorSet) PublicKey(id NodeID) (crypto.PublicKey, bool) {
	pk, ok := vs.keys[id]
	return pk, ok
}

// LeaderForView returns the validator assigned to propose at view, by
// simple round-robin rotation over the ordered set.
func (vs *ValidatorSet) LeaderForView(view ViewNumber) NodeID {
	n := len(vs.ids)
	if n == 0 {
		return 0
	}
	return vs.ids[uint64(view)%uint64(n)]
}

// Contains reports whether id names a validator in this set.
func (vs *ValidatorSet) Contains(id NodeID) bool {
	_, ok := vs.keys[id]
	return ok
}

// MaxFaulty returns f, the largest number of Byzantine validators this set
// can tolerate while n >= 3f+1 holds.
func (vs *ValidatorSet) MaxFaulty() int {
	return (len(vs.ids) - 1) / 3
}

// Validate reports an error if the set's size cannot satisfy n >= 3f+1 for
// any f >= 0, i.e. if it has fewer than one validator.
func (vs *ValidatorSet) Validate() error {
	if len(vs.ids) < 1 {
		return fmt.Errorf("validator set must have at least one member")
	}
	return nil
}
