package consensus

import "github.com/tolelom/tolchain/crypto"

// MessageKind distinguishes the three HotStuff message variants exchanged
// between replicas.
type MessageKind int

const (
	// MsgProposal carries a new block from the view's leader to every
	// replica.
	MsgProposal MessageKind = iota
	// MsgVote carries one replica's vote (partial signature) for a
	// proposed block back to the next view's leader.
	MsgVote
	// MsgNewView carries a replica's highest known QC to the next view's
	// leader when its local timer expires before it sees a proposal.
	MsgNewView
)

func (k MessageKind) String() string {
	switch k {
	case MsgProposal:
		return "proposal"
	case MsgVote:
		return "vote"
	case MsgNewView:
		return "new-view"
	default:
		return "unknown"
	}
}

// HotStuffMessage is the tagged union of every message a replica sends or
// receives during consensus. Only the fields relevant to Kind are
// meaningful; the others are left zero.
type HotStuffMessage struct {
	Kind   MessageKind
	View   ViewNumber
	Sender NodeID

	// Block carries the proposed block. Set only for MsgProposal.
	Block *Block

	// VoteBlockHash is the hash of the block being voted for. Set only
	// for MsgVote.
	VoteBlockHash Hash
	// VoteSig is the voter's partial signature over (View, VoteBlockHash).
	// Set only for MsgVote.
	VoteSig []byte

	// HighQC is the sender's highest known quorum certificate. Set only
	// for MsgNewView.
	HighQC *QuorumCertificate
}

// Hash returns message_hash = SHA-256(canonical(view || block_hash ||
// qc_hash)). The fields a variant does not carry are hashed as ZeroHash:
// Proposal and Vote messages zero their qc_hash field, and NewView zeros
// its block_hash field. The kind itself is not hashed, so a Proposal and a
// Vote for the same view and block hash produce the same hash.
func (m HotStuffMessage) Hash() Hash {
	blockHash := ZeroHash
	qcHash := ZeroHash

	switch m.Kind {
	case MsgProposal:
		if m.Block != nil {
			blockHash = m.Block.Hash()
		}
	case MsgVote:
		blockHash = m.VoteBlockHash
	case MsgNewView:
		if m.HighQC != nil {
			qcHash = hashQC(m.HighQC)
		}
	}

	enc := crypto.NewEncoder()
	enc.Uint64(uint64(m.View))
	enc.Fixed(blockHash[:])
	enc.Fixed(qcHash[:])
	return enc.Sum256()
}

// hashQC returns a content hash for qc, used only to fold a QC's identity
// into a NewView message's hash; it is not the signing preimage validators
// vote over.
func hashQC(qc *QuorumCertificate) Hash {
	enc := crypto.NewEncoder()
	enc.Uint64(uint64(qc.View))
	enc.Fixed(qc.BlockHash[:])
	enc.Uint32(uint32(len(qc.Sigs)))
	for _, s := range qc.Sigs {
		enc.Uint32(uint32(s.Signer))
		enc.Bytes(s.Signature)
	}
	return enc.Sum256()
}

// NewProposal builds a MsgProposal message.
func NewProposal(view ViewNumber, sender NodeID, block *Block) HotStuffMessage {
	return HotStuffMessage{Kind: MsgProposal, View: view, Sender: sender, Block: block}
}

// NewVote builds a MsgVote message voting for blockHash, signed by priv.
func NewVote(view ViewNumber, sender NodeID, blockHash Hash, priv crypto.PrivateKey) HotStuffMessage {
	sig := crypto.SignRaw(priv, qcSigningPreimage(view, blockHash))
	return HotStuffMessage{Kind: MsgVote, View: view, Sender: sender, VoteBlockHash: blockHash, VoteSig: sig}
}

// NewNewView builds a MsgNewView message reporting the sender's highest
// known QC.
func NewNewView(view ViewNumber, sender NodeID, highQC *QuorumCertificate) HotStuffMessage {
	return HotStuffMessage{Kind: MsgNewView, View: view, Sender: sender, HighQC: highQC}
}
