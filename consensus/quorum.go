package consensus

import (
	"fmt"

	"github.com/tolelom/tolchain/crypto"
)

// Quorum returns the quorum threshold Q(n) = 2*floor((n-1)/3) + 1 for a
// validator set of size n. A certificate needs signatures from at least
// Q(n) distinct validators to be valid, tolerating up to f = floor((n-1)/3)
// Byzantine validators out of n >= 3f+1.
func Quorum(n int) int {
	f := (n - 1) / 3
	return 2*f + 1
}

// PartialSig is one validator's signature over a message hash, carried
// alongside the signer's identity so a QC can be assembled and later
// checked for distinct signers.
type PartialSig struct {
	Signer    NodeID
	Signature []byte
}

// QuorumCertificate attests that a quorum of validators voted for the block
// identified by BlockHash in View. The Genesis QC is a sentinel with no
// signatures at all: it justifies the Genesis block and always verifies.
type QuorumCertificate struct {
	View      ViewNumber
	BlockHash Hash
	Sigs      []PartialSig
}

// GenesisQC returns the sentinel certificate that justifies the Genesis
// block. It carries no signatures; Verify special-cases it to always pass.
func GenesisQC() *QuorumCertificate {
	return &QuorumCertificate{View: 0, BlockHash: GenesisBlockHash}
}

// IsGenesisQC reports whether qc is the Genesis sentinel.
func (qc *QuorumCertificate) IsGenesisQC() bool {
	return qc.View == 0 && qc.BlockHash == GenesisBlockHash
}

// qcSigningPreimage returns the bytes every validator signs over when voting
// for (view, blockHash): view and block hash, canonically encoded.
func qcSigningPreimage(view ViewNumber, blockHash Hash) []byte {
	enc := crypto.NewEncoder()
	enc.Uint64(uint64(view))
	enc.Fixed(blockHash[:])
	return enc.Build()
}

// NewQuorumCertificateFromSignatures assembles a QC from a set of partial
// signatures collected by a leader, without verifying them (the leader
// trusts its own collection; recipients verify independently via Verify).
func NewQuorumCertificateFromSignatures(view ViewNumber, blockHash Hash, sigs []PartialSig) *QuorumCertificate {
	return &QuorumCertificate{View: view, BlockHash: blockHash, Sigs: append([]PartialSig(nil), sigs...)}
}

// Verify reports whether qc carries valid signatures from at least Q(n)
// distinct members of validators, where n = validators.Len(). The Genesis
// QC always verifies regardless of validators. Duplicate signers count
// once; signers absent from validators do not count at all.
func (qc *QuorumCertificate) Verify(validators *ValidatorSet) error {
	if qc.IsGenesisQC() {
		return nil
	}

	preimage := qcSigningPreimage(qc.View, qc.BlockHash)
	seen := make(map[NodeID]bool, len(qc.Sigs))
	valid := 0
	for _, sig := range qc.Sigs {
		if seen[sig.Signer] {
			continue
		}
		pub, ok := validators.PublicKey(sig.Signer)
		if !ok {
			continue
		}
		if !crypto.VerifyRaw(pub, preimage, sig.Signature) {
			continue
		}
		seen[sig.Signer] = true
		valid++
	}

	need := Quorum(validators.Len())
	if valid < need {
		return fmt.Errorf("quorum certificate for view %d has %d valid signatures, need %d", qc.View, valid, need)
	}
	return nil
}
