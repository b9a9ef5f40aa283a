// Package ledger implements the deterministic execution engine's account
// state: per-account, per-asset balances and nonces, and the pure transfer
// rules applied to them on block commit.
package ledger

import (
	"encoding/hex"

	"github.com/tolelom/tolchain/crypto"
)

// Account identifies a ledger account by its raw Ed25519 public key bytes.
// Using the public key directly (rather than a derived short hash) matches
// the signature-verification path: the same 32 bytes verify a transaction
// and index its account.
type Account [32]byte

// AccountFromPublicKey converts an Ed25519 public key into an Account.
func AccountFromPublicKey(pub crypto.PublicKey) (Account, bool) {
	var a Account
	if len(pub) != 32 {
		return a, false
	}
	copy(a[:], pub)
	return a, true
}

// PublicKey returns the Ed25519 public key backing a.
func (a Account) PublicKey() crypto.PublicKey {
	return crypto.PublicKey(a[:])
}

// String renders a as lowercase hex.
func (a Account) String() string {
	return hex.EncodeToString(a[:])
}

// AssetID identifies a fungible asset by a small integer id.
type AssetID uint32

// Balance is one account's holding of one asset. Total is the account's full
// balance; Available is what remains unlocked (not held against open
// orders). The invariant Total >= Available >= 0 must hold after every
// mutation.
type Balance struct {
	Available uint64
	Total     uint64
}

// Locked returns the portion of Total held against open orders.
func (b Balance) Locked() uint64 {
	return b.Total - b.Available
}

// AccountInfo is the full per-account state: balances per asset plus the
// nonce the account's next transaction must present.
type AccountInfo struct {
	Balances      map[AssetID]*Balance
	ExpectedNonce uint64
}

func newAccountInfo() *AccountInfo {
	return &AccountInfo{Balances: make(map[AssetID]*Balance)}
}

// BalanceOf returns the account's balance in asset, or the zero balance if
// it holds none.
func (ai AccountInfo) BalanceOf(asset AssetID) Balance {
	if b, ok := ai.Balances[asset]; ok {
		return *b
	}
	return Balance{}
}

func (ai *AccountInfo) balanceRef(asset AssetID) *Balance {
	b, ok := ai.Balances[asset]
	if !ok {
		b = &Balance{}
		ai.Balances[asset] = b
	}
	return b
}

// Snapshot returns a deep copy of ai, safe for a caller to read without
// racing further mutation (used by the query ingress path).
func (ai *AccountInfo) Snapshot() AccountInfo {
	out := AccountInfo{
		Balances:      make(map[AssetID]*Balance, len(ai.Balances)),
		ExpectedNonce: ai.ExpectedNonce,
	}
	for id, b := range ai.Balances {
		cp := *b
		out.Balances[id] = &cp
	}
	return out
}
