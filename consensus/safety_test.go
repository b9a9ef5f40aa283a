package consensus

import "testing"

func TestSafeNodeExtendsLockedBlock(t *testing.T) {
	bs := NewBlockStore()
	genesis := NewGenesisBlock()

	b1 := NewBlock(1, genesis.Hash(), ClientCommand{}, GenesisQC())
	bs.Put(b1)
	b2 := NewBlock(2, b1.Hash(), ClientCommand{}, &QuorumCertificate{View: 1, BlockHash: b1.Hash()})
	bs.Put(b2)

	s := NewSafetyState() // locked on genesis

	if err := s.SafeNode(bs, b1, b1.Justify); err != nil {
		t.Fatalf("b1 directly extends genesis, should be safe: %v", err)
	}
	if err := s.SafeNode(bs, b2, b2.Justify); err != nil {
		t.Fatalf("b2 extends genesis within three links, should be safe: %v", err)
	}
}

func TestSafeNodeLivenessEscape(t *testing.T) {
	bs := NewBlockStore()
	s := NewSafetyState()
	s.UpdateLockedQC(&QuorumCertificate{View: 5, BlockHash: Hash{9}})

	// A block with no chain relation to the lock, but whose own justify
	// is for a later view than the lock, is still safe (liveness escape).
	orphan := NewBlock(10, Hash{1}, ClientCommand{}, &QuorumCertificate{View: 6, BlockHash: Hash{1}})
	if err := s.SafeNode(bs, orphan, orphan.Justify); err != nil {
		t.Fatalf("higher-view justify should escape the lock: %v", err)
	}

	stale := NewBlock(11, Hash{2}, ClientCommand{}, &QuorumCertificate{View: 4, BlockHash: Hash{2}})
	if err := s.SafeNode(bs, stale, stale.Justify); err == nil {
		t.Fatalf("lower-view justify with no chain relation should be unsafe")
	}
}

func TestSafeNodeRejectsDoubleVoteInSameView(t *testing.T) {
	bs := NewBlockStore()
	genesis := NewGenesisBlock()
	b1 := NewBlock(1, genesis.Hash(), ClientCommand{}, GenesisQC())
	bs.Put(b1)

	s := NewSafetyState()
	if err := s.SafeNode(bs, b1, b1.Justify); err != nil {
		t.Fatalf("first vote in view 1 should be safe: %v", err)
	}
	s.RecordVote(1)

	again := NewBlock(1, genesis.Hash(), ClientCommand{}, GenesisQC())
	if err := s.SafeNode(bs, again, again.Justify); err == nil {
		t.Fatalf("second vote in the same view must be rejected")
	}
}
