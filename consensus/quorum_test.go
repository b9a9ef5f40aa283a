package consensus

import (
	"testing"

	"github.com/tolelom/tolchain/crypto"
)

func TestQuorumArithmetic(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 1}, {4, 3}, {7, 5}, {10, 7},
	}
	for _, c := range cases {
		if got := Quorum(c.n); got != c.want {
			t.Errorf("Quorum(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func newTestValidatorSet(t *testing.T, n int) (*ValidatorSet, []crypto.PrivateKey) {
	t.Helper()
	privs := make([]crypto.PrivateKey, n)
	pubs := make([]crypto.PublicKey, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair: %v", err)
		}
		privs[i] = priv
		pubs[i] = pub
	}
	return NewValidatorSet(pubs), privs
}

func TestQuorumCertificateVerify(t *testing.T) {
	vs, privs := newTestValidatorSet(t, 4) // n=4, Q=3
	view := ViewNumber(1)
	blockHash := Hash{1, 2, 3}
	preimage := qcSigningPreimage(view, blockHash)

	var sigs []PartialSig
	for i := 0; i < 3; i++ {
		sigs = append(sigs, PartialSig{Signer: NodeID(i), Signature: crypto.SignRaw(privs[i], preimage)})
	}
	qc := NewQuorumCertificateFromSignatures(view, blockHash, sigs)
	if err := qc.Verify(vs); err != nil {
		t.Fatalf("expected quorum of 3 to verify for n=4: %v", err)
	}

	short := NewQuorumCertificateFromSignatures(view, blockHash, sigs[:2])
	if err := short.Verify(vs); err == nil {
		t.Fatalf("expected 2 signatures to fail quorum for n=4")
	}

	tampered := NewQuorumCertificateFromSignatures(view, Hash{9, 9, 9}, sigs)
	if err := tampered.Verify(vs); err == nil {
		t.Fatalf("expected signatures over a different block hash to fail verify")
	}
}

func TestQuorumCertificateVerifyDedupsSigners(t *testing.T) {
	vs, privs := newTestValidatorSet(t, 4)
	view := ViewNumber(1)
	blockHash := Hash{1}
	preimage := qcSigningPreimage(view, blockHash)

	sig0 := crypto.SignRaw(privs[0], preimage)
	sigs := []PartialSig{
		{Signer: 0, Signature: sig0},
		{Signer: 0, Signature: sig0}, // duplicate signer, counts once
		{Signer: 1, Signature: crypto.SignRaw(privs[1], preimage)},
	}
	qc := NewQuorumCertificateFromSignatures(view, blockHash, sigs)
	if err := qc.Verify(vs); err == nil {
		t.Fatalf("expected 2 distinct signers to fail quorum of 3 for n=4")
	}
}

func TestGenesisQCAlwaysVerifies(t *testing.T) {
	vs, _ := newTestValidatorSet(t, 4)
	qc := GenesisQC()
	if err := qc.Verify(vs); err != nil {
		t.Fatalf("genesis QC must always verify: %v", err)
	}
}
