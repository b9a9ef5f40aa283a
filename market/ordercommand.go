package market

import (
	"crypto/ed25519"
	"fmt"

	tolcrypto "github.com/tolelom/tolchain/crypto"
)

// OrderCommandKind tags the three order-book operations a client can
// submit, alongside ledger transfers, into a committed block.
type OrderCommandKind int

const (
	CmdPlaceLimitOrder OrderCommandKind = iota
	CmdCancelOrder
	CmdMarketOrder
)

// OrderCommand is one order-book operation: place a limit order, cancel a
// resting one, or execute a market order. Only the fields relevant to Kind
// are meaningful.
type OrderCommand struct {
	Kind     OrderCommandKind
	Account  Account
	MarketID MarketID
	Nonce    uint64

	// PlaceLimitOrder / shared with CancelOrder's target order identity.
	Direction Direction
	Price     uint64
	BaseLots  uint32

	// CancelOrder.
	TargetOrderID OrderID

	// MarketOrder.
	MarketKind MarketOrderKind
	Size       uint64
}

// SignedOrderCommand wraps an OrderCommand with the submitting account's
// signature, so order commands can ride the same untrusted mempool/p2p
// path as transfers.
type SignedOrderCommand struct {
	Command   OrderCommand
	Signature []byte
}

func (c OrderCommand) signingPreimage() []byte {
	enc := tolcrypto.NewEncoder()
	enc.Byte(byte(c.Kind))
	enc.Fixed(c.Account[:])
	enc.Uint32(uint32(c.MarketID))
	enc.Uint64(c.Nonce)
	enc.Byte(byte(c.Direction))
	enc.Uint64(c.Price)
	enc.Uint32(c.BaseLots)
	enc.Uint64(uint64(c.TargetOrderID))
	enc.Byte(byte(c.MarketKind))
	enc.Uint64(c.Size)
	return enc.Build()
}

// Hash returns the command's content hash, covering both its fields and
// signature.
func (c *SignedOrderCommand) Hash() [32]byte {
	enc := tolcrypto.NewEncoder()
	enc.Fixed(c.Command.signingPreimage())
	enc.Bytes(c.Signature)
	return enc.Sum256()
}

// Sign sets c.Signature to priv's Ed25519 signature over the command's
// signing preimage.
func (c *SignedOrderCommand) Sign(priv tolcrypto.PrivateKey) {
	c.Signature = tolcrypto.SignRaw(priv, c.Command.signingPreimage())
}

// VerifySignature reports whether c.Signature is valid under Command.Account.
func (c *SignedOrderCommand) VerifySignature() bool {
	if len(c.Signature) != ed25519.SignatureSize {
		return false
	}
	pub := ed25519.PublicKey(c.Command.Account[:])
	return ed25519.Verify(pub, c.Command.signingPreimage(), c.Signature)
}

// Apply executes c against ch, returning an error if the command is
// malformed or references a market/order that does not exist. Unlike
// ledger transfers, order commands carry no replay-protected nonce
// sequencing requirement beyond what CancelOrder's own idempotence and a
// market's monotonically increasing order ids already provide; Nonce is
// used only for the mempool's (account, nonce) dedup (see
// OrderCommandMempool).
func (c *OrderCommand) Apply(ch *ClearingHouse) (any, error) {
	switch c.Kind {
	case CmdPlaceLimitOrder:
		return ch.PlaceLimitOrder(c.MarketID, c.Account, c.Direction, c.Price, c.BaseLots)
	case CmdCancelOrder:
		m, ok := ch.Market(c.MarketID)
		if !ok {
			return nil, fmt.Errorf("market %d not found", c.MarketID)
		}
		order := Order{ID: c.TargetOrderID, Account: c.Account, Direction: c.Direction, Price: c.Price, BaseLots: c.BaseLots}
		_ = m
		return nil, ch.CancelOrder(c.MarketID, order)
	case CmdMarketOrder:
		return ch.ExecuteMarketOrder(c.MarketID, c.Account, c.MarketKind, c.Size)
	default:
		return nil, fmt.Errorf("unknown order command kind %d", c.Kind)
	}
}
