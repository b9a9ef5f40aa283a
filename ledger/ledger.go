package ledger

import (
	"crypto/ed25519"
	"math"

	tolcrypto "github.com/tolelom/tolchain/crypto"
)

// faucetSeed fixes the faucet account's Ed25519 key deterministically, so
// every replica derives the identical FaucetAccount and can independently
// verify transactions the faucet signs, without any secret material ever
// needing to be distributed out of band.
var faucetSeed = [32]byte{
	'r', 'e', 'p', 'l', 'i', 'c', 'a', 't', 'e', 'd', '-', 'f', 'a', 'u', 'c', 'e',
	't', '-', 's', 'e', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// FaucetPrivateKey signs the synthetic transfers a Drip request produces.
// FaucetAccount is the distinguished account seeded with an effectively
// unlimited balance of every default asset. It is an ordinary account
// otherwise: transfers out of it obey the same nonce and balance rules as
// any other account, and are only ever produced via the normal
// SignedTransaction path.
var (
	FaucetPrivateKey tolcrypto.PrivateKey
	FaucetPublicKey  tolcrypto.PublicKey
	FaucetAccount    Account
)

func init() {
	sk := ed25519.NewKeyFromSeed(faucetSeed[:])
	FaucetPrivateKey = tolcrypto.PrivateKey(sk)
	FaucetPublicKey = tolcrypto.PublicKey(sk.Public().(ed25519.PublicKey))
	FaucetAccount, _ = AccountFromPublicKey(FaucetPublicKey)
}

// DripAmount is the fixed quantity credited to an account per Drip
// request, denominated in the asset's smallest unit.
const DripAmount = 100_000_000

// Ledger is the deterministic account/balance state. It is owned
// exclusively by one replica task; nothing outside that task may read or
// write it concurrently, so no internal locking is required.
type Ledger struct {
	accounts map[Account]*AccountInfo
}

// New returns an empty Ledger seeded with the faucet account holding
// math.MaxUint64 of each of the given asset ids.
func New(faucetAssets []AssetID) *Ledger {
	l := &Ledger{accounts: make(map[Account]*AccountInfo)}
	faucet := l.getOrCreate(FaucetAccount)
	for _, asset := range faucetAssets {
		faucet.Balances[asset] = &Balance{Available: math.MaxUint64, Total: math.MaxUint64}
	}
	return l
}

func (l *Ledger) getOrCreate(acct Account) *AccountInfo {
	ai, ok := l.accounts[acct]
	if !ok {
		ai = newAccountInfo()
		l.accounts[acct] = ai
	}
	return ai
}

// Account returns a read-only snapshot of acct's state. Unknown accounts
// snapshot as a zero-value account with ExpectedNonce 0.
func (l *Ledger) Account(acct Account) AccountInfo {
	ai, ok := l.accounts[acct]
	if !ok {
		return AccountInfo{Balances: map[AssetID]*Balance{}}
	}
	return ai.Snapshot()
}

// ApplyTransfer applies tx to the ledger and returns the resulting receipt
// status. A transaction whose nonce does not match the sender's current
// expected nonce, or whose sender lacks sufficient available balance, is
// rejected with no state change at all (balances and nonce both untouched).
func (l *Ledger) ApplyTransfer(tx *SignedTransaction) ReceiptStatus {
	t := tx.Transfer
	from := l.getOrCreate(t.From)

	if t.Nonce != from.ExpectedNonce {
		return StatusRejectedStaleNonce
	}

	fromBal := from.balanceRef(t.AssetID)
	if fromBal.Available < t.Amount {
		return StatusRejectedInsufficientFunds
	}

	to := l.getOrCreate(t.To)
	toBal := to.balanceRef(t.AssetID)

	fromBal.Available -= t.Amount
	fromBal.Total -= t.Amount
	toBal.Available += t.Amount
	toBal.Total += t.Amount
	from.ExpectedNonce++

	return StatusApplied
}

// Credit mints amount of asset directly into acct's Available and Total
// balance, with no corresponding debit anywhere. Used only for genesis
// allocation; Drip requests go through a signed faucet transfer instead, and
// Credit is never reachable from a client-submitted transfer.
func (l *Ledger) Credit(acct Account, asset AssetID, amount uint64) {
	ai := l.getOrCreate(acct)
	bal := ai.balanceRef(asset)
	bal.Available += amount
	bal.Total += amount
}

// Lock moves amount of asset from an account's Available balance into its
// Locked (implicit, Total-Available) balance, for placing a resting limit
// order. It fails if Available is insufficient.
func (l *Ledger) Lock(acct Account, asset AssetID, amount uint64) bool {
	ai := l.getOrCreate(acct)
	bal := ai.balanceRef(asset)
	if bal.Available < amount {
		return false
	}
	bal.Available -= amount
	return true
}

// Unlock reverses Lock: amount of asset moves back from Locked to
// Available, for a cancelled or expired resting order.
func (l *Ledger) Unlock(acct Account, asset AssetID, amount uint64) {
	ai := l.getOrCreate(acct)
	bal := ai.balanceRef(asset)
	bal.Available += amount
}

// SettleFill applies one side of a matched trade: giveAsset/giveAmount was
// already locked (for the maker) or is taken from Available (for the
// taker's marketable portion) and leaves Total; receiveAsset/receiveAmount
// is credited to both Available and Total.
func (l *Ledger) SettleFill(acct Account, giveAsset AssetID, giveAmount uint64, receiveAsset AssetID, receiveAmount uint64, giveWasLocked bool) {
	ai := l.getOrCreate(acct)
	give := ai.balanceRef(giveAsset)
	if giveWasLocked {
		give.Total -= giveAmount
	} else {
		give.Available -= giveAmount
		give.Total -= giveAmount
	}
	recv := ai.balanceRef(receiveAsset)
	recv.Available += receiveAmount
	recv.Total += receiveAmount
}
