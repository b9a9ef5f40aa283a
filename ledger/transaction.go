package ledger

import (
	"crypto/ed25519"
	"fmt"

	tolcrypto "github.com/tolelom/tolchain/crypto"
)

// TxHash is the content hash of a SignedTransaction.
type TxHash [32]byte

func (h TxHash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Transfer is the one transaction variant this ledger supports: move Amount
// of AssetID from From to To.
type Transfer struct {
	From    Account
	To      Account
	AssetID AssetID
	Amount  uint64
	Nonce   uint64
}

// SignedTransaction wraps a Transfer with the sender's Ed25519 signature
// over its canonical encoding.
type SignedTransaction struct {
	Transfer  Transfer
	Signature []byte // ed25519.SignatureSize bytes
}

// signingPreimage returns the canonical bytes the sender signs: the
// transfer's fields in a fixed order. Two transfers with identical fields
// produce identical preimages and therefore identical hashes.
func (tx *SignedTransaction) signingPreimage() []byte {
	enc := tolcrypto.NewEncoder()
	enc.Fixed(tx.Transfer.From[:])
	enc.Fixed(tx.Transfer.To[:])
	enc.Uint32(uint32(tx.Transfer.AssetID))
	enc.Uint64(tx.Transfer.Amount)
	enc.Uint64(tx.Transfer.Nonce)
	return enc.Build()
}

// Hash returns the transaction's content hash, covering both the transfer
// fields and the signature (two otherwise-identical transfers signed by
// different keys, or with tampered signatures, hash differently).
func (tx *SignedTransaction) Hash() TxHash {
	enc := tolcrypto.NewEncoder()
	enc.Fixed(tx.signingPreimage())
	enc.Bytes(tx.Signature)
	return TxHash(enc.Sum256())
}

// Sign sets tx.Signature to the Ed25519 signature of priv over the
// transfer's signing preimage.
func (tx *SignedTransaction) Sign(priv tolcrypto.PrivateKey) {
	tx.Signature = ed25519.Sign(ed25519.PrivateKey(priv), tx.signingPreimage())
}

// VerifySignature reports whether tx.Signature is a valid Ed25519 signature
// by Transfer.From over the transfer's signing preimage.
func (tx *SignedTransaction) VerifySignature() bool {
	if len(tx.Signature) != ed25519.SignatureSize {
		return false
	}
	pub := ed25519.PublicKey(tx.Transfer.From[:])
	return ed25519.Verify(pub, tx.signingPreimage(), tx.Signature)
}

// ReceiptStatus records the outcome of attempting to apply a committed
// transaction to the ledger.
type ReceiptStatus int

const (
	// StatusApplied means the transfer's balance and nonce effects were applied.
	StatusApplied ReceiptStatus = iota
	// StatusRejectedStaleNonce means the transaction's nonce no longer
	// matched the account's expected nonce at commit time.
	StatusRejectedStaleNonce
	// StatusRejectedInsufficientFunds means the sender lacked Available
	// balance to cover the transfer.
	StatusRejectedInsufficientFunds
)

func (s ReceiptStatus) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusRejectedStaleNonce:
		return "rejected: stale nonce"
	case StatusRejectedInsufficientFunds:
		return "rejected: insufficient funds"
	default:
		return "unknown"
	}
}

// Receipt is the committed-side record of a transaction's outcome. Receipts
// are produced for every transaction reaching commit, whether or not its
// ledger effect actually applied (Open Question 2 resolved: stale-nonce
// transactions still get a receipt, just a rejecting one).
type Receipt struct {
	TxHash      TxHash
	BlockHeight uint64
	Status      ReceiptStatus
}
