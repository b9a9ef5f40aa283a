// Package consensus implements the HotStuff-derived three-phase BFT
// pipeline: blocks, quorum certificates, the message window, the pacemaker,
// and the replica state machine that ties them together.
package consensus

import (
	"encoding/hex"
	"fmt"

	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// Hash is a 32-byte SHA-256 digest used for block hashes, message hashes and
// QC hashes throughout the consensus layer.
type Hash [32]byte

// String renders h as lowercase hex, for logs.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ZeroHash is the all-zero sentinel used where a field is intentionally not
// carried by a given message variant (see MessageHash).
var ZeroHash = Hash{}

// GenesisBlockHash is the fixed 32-byte hash of the Genesis block. It is a
// constant rather than a computed hash so that every replica agrees on it
// without exchanging anything.
var GenesisBlockHash = Hash{
	144, 17, 49, 216, 56, 177, 122, 172, 15, 120, 133, 184, 30, 3, 203, 220,
	159, 81, 87, 160, 3, 67, 211, 10, 178, 32, 131, 104, 94, 209, 65, 106,
}

// ViewNumber is a monotonic per-replica view counter. It never decreases,
// though views may be skipped.
type ViewNumber uint64

// ClientCommand is an ordered batch of signed transactions carried by a
// block, plus an ordered batch of order-book commands. It may be empty (a
// placeholder block). Order commands ride alongside transfers so the order
// book commits deterministically in lockstep with the ledger, exactly like
// the ledger's own transfers.
type ClientCommand struct {
	Transactions  []*ledger.SignedTransaction
	OrderCommands []*market.SignedOrderCommand
}

// Hash returns a deterministic digest of the command, determined only by
// the transactions and order commands it carries (their own content
// hashes, in order).
func (c ClientCommand) Hash() Hash {
	enc := crypto.NewEncoder()
	enc.Uint32(uint32(len(c.Transactions)))
	for _, tx := range c.Transactions {
		h := tx.Hash()
		enc.Fixed(h[:])
	}
	enc.Uint32(uint32(len(c.OrderCommands)))
	for _, oc := range c.OrderCommands {
		h := oc.Hash()
		enc.Fixed(h[:])
	}
	return enc.Sum256()
}

// Block is a node in the HotStuff chain. The Genesis block is the unique
// block with View == 0 and Hash == GenesisBlockHash; every other block is
// "Normal" and carries a parent hash, a justify QC and a command.
type Block struct {
	View       ViewNumber
	ParentHash Hash
	Cmd        ClientCommand
	Justify    *QuorumCertificate
	MerkleRoot Hash

	hash      Hash
	hashValid bool
}

// NewGenesisBlock returns the singleton Genesis block.
func NewGenesisBlock() *Block {
	return &Block{
		View:      0,
		hash:      GenesisBlockHash,
		hashValid: true,
	}
}

// IsGenesis reports whether b is the Genesis block.
func (b *Block) IsGenesis() bool {
	return b.View == 0 && b.Hash() == GenesisBlockHash
}

// Hash returns SHA-256(canonical(parent_hash || cmd_hash || view)), computed
// once and cached. The Genesis block always returns GenesisBlockHash.
func (b *Block) Hash() Hash {
	if b.hashValid {
		return b.hash
	}
	cmdHash := b.Cmd.Hash()
	enc := crypto.NewEncoder()
	enc.Fixed(b.ParentHash[:])
	enc.Fixed(cmdHash[:])
	enc.Uint64(uint64(b.View))
	b.hash = enc.Sum256()
	b.hashValid = true
	return b.hash
}

// NewBlock creates a Normal block as a leaf extending parentHash, justified
// by justify, at the given view. MerkleRoot is computed from cmd's
// transactions so receivers can verify the claimed root independently.
func NewBlock(view ViewNumber, parentHash Hash, cmd ClientCommand, justify *QuorumCertificate) *Block {
	b := &Block{
		View:       view,
		ParentHash: parentHash,
		Cmd:        cmd,
		Justify:    justify,
	}
	b.MerkleRoot = cmd.Hash()
	return b
}

// VerifyMerkleRoot reports whether b's claimed MerkleRoot matches the root
// recomputed from its own transactions.
func (b *Block) VerifyMerkleRoot() bool {
	return b.MerkleRoot == b.Cmd.Hash()
}

// BlockStore maps a block hash to the block it names. It is the sole
// authoritative owner of block bodies; all other holders reference blocks by
// hash and look them up here.
type BlockStore struct {
	blocks map[Hash]*Block
}

// NewBlockStore returns a BlockStore pre-seeded with the Genesis block.
func NewBlockStore() *BlockStore {
	bs := &BlockStore{blocks: make(map[Hash]*Block)}
	genesis := NewGenesisBlock()
	bs.blocks[genesis.Hash()] = genesis
	return bs
}

// Put inserts block, indexed by its own hash. Blocks are never removed.
func (bs *BlockStore) Put(b *Block) {
	bs.blocks[b.Hash()] = b
}

// Get returns the block with the given hash, or (nil, false) if absent.
func (bs *BlockStore) Get(hash Hash) (*Block, bool) {
	b, ok := bs.blocks[hash]
	return b, ok
}

// MustGet returns the block with the given hash, or an error describing the
// missing ancestor. Used by safety checks that must fail closed on an
// absent parent or justify target.
func (bs *BlockStore) MustGet(hash Hash) (*Block, error) {
	b, ok := bs.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("block %s not found in store", hash)
	}
	return b, nil
}

// Parent returns b's parent block, or an error if it is not present in the
// store (a fail-closed condition for the safety checks).
func (bs *BlockStore) Parent(b *Block) (*Block, error) {
	if b.IsGenesis() {
		return nil, fmt.Errorf("genesis block has no parent")
	}
	return bs.MustGet(b.ParentHash)
}
