package wallet

import (
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// Wallet holds a key pair and provides transaction/order-command signing
// helpers for the client console.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// Account returns the ledger account this wallet signs for.
func (w *Wallet) Account() ledger.Account {
	acct, _ := ledger.AccountFromPublicKey(w.pub)
	return acct
}

// Transfer builds and signs a Transfer of amount of asset to to, at nonce.
func (w *Wallet) Transfer(to ledger.Account, asset ledger.AssetID, amount, nonce uint64) *ledger.SignedTransaction {
	tx := &ledger.SignedTransaction{
		Transfer: ledger.Transfer{From: w.Account(), To: to, AssetID: asset, Amount: amount, Nonce: nonce},
	}
	tx.Sign(w.priv)
	return tx
}

// PlaceLimitOrder builds and signs a limit-order command.
func (w *Wallet) PlaceLimitOrder(mkt market.MarketID, dir market.Direction, price uint64, baseLots uint32, nonce uint64) *market.SignedOrderCommand {
	oc := &market.SignedOrderCommand{Command: market.OrderCommand{
		Kind: market.CmdPlaceLimitOrder, Account: w.Account(), MarketID: mkt,
		Nonce: nonce, Direction: dir, Price: price, BaseLots: baseLots,
	}}
	oc.Sign(w.priv)
	return oc
}

// CancelOrder builds and signs a cancel-order command.
func (w *Wallet) CancelOrder(mkt market.MarketID, targetOrderID market.OrderID, dir market.Direction, price uint64, baseLots uint32, nonce uint64) *market.SignedOrderCommand {
	oc := &market.SignedOrderCommand{Command: market.OrderCommand{
		Kind: market.CmdCancelOrder, Account: w.Account(), MarketID: mkt, Nonce: nonce,
		TargetOrderID: targetOrderID, Direction: dir, Price: price, BaseLots: baseLots,
	}}
	oc.Sign(w.priv)
	return oc
}

// MarketOrder builds and signs a market-order command.
func (w *Wallet) MarketOrder(mkt market.MarketID, kind market.MarketOrderKind, size uint64, nonce uint64) *market.SignedOrderCommand {
	oc := &market.SignedOrderCommand{Command: market.OrderCommand{
		Kind: market.CmdMarketOrder, Account: w.Account(), MarketID: mkt,
		Nonce: nonce, MarketKind: kind, Size: size,
	}}
	oc.Sign(w.priv)
	return oc
}
