package consensus

import "testing"

func TestGenesisBlockHashIsFixed(t *testing.T) {
	g := NewGenesisBlock()
	if g.Hash() != GenesisBlockHash {
		t.Fatalf("genesis hash = %x, want fixed constant", g.Hash())
	}
	if !g.IsGenesis() {
		t.Fatalf("genesis block should report IsGenesis() == true")
	}
}

func TestBlockHashDeterminedByParentCmdView(t *testing.T) {
	parent := Hash{1, 2, 3}
	cmd := ClientCommand{}

	b1 := NewBlock(5, parent, cmd, GenesisQC())
	b2 := NewBlock(5, parent, cmd, GenesisQC())
	if b1.Hash() != b2.Hash() {
		t.Fatalf("identical (parent, cmd, view) must hash identically")
	}

	b3 := NewBlock(6, parent, cmd, GenesisQC())
	if b1.Hash() == b3.Hash() {
		t.Fatalf("different view must change the hash")
	}

	otherParent := Hash{9, 9, 9}
	b4 := NewBlock(5, otherParent, cmd, GenesisQC())
	if b1.Hash() == b4.Hash() {
		t.Fatalf("different parent hash must change the hash")
	}
}

func TestBlockStoreParentLookup(t *testing.T) {
	bs := NewBlockStore()
	genesis := NewGenesisBlock()

	b1 := NewBlock(1, genesis.Hash(), ClientCommand{}, GenesisQC())
	bs.Put(b1)

	parent, err := bs.Parent(b1)
	if err != nil {
		t.Fatalf("unexpected error resolving parent: %v", err)
	}
	if parent.Hash() != genesis.Hash() {
		t.Fatalf("resolved parent hash mismatch")
	}

	if _, err := bs.Parent(genesis); err == nil {
		t.Fatalf("expected error resolving genesis's parent")
	}
}

func TestVerifyMerkleRoot(t *testing.T) {
	b := NewBlock(1, GenesisBlockHash, ClientCommand{}, GenesisQC())
	if !b.VerifyMerkleRoot() {
		t.Fatalf("freshly constructed block must verify its own merkle root")
	}
	b.MerkleRoot = Hash{1}
	if b.VerifyMerkleRoot() {
		t.Fatalf("tampered merkle root must fail verification")
	}
}
