package config

import (
	"fmt"

	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// BuildGenesisState constructs the initial Ledger and ClearingHouse a
// replica starts from: the faucet seeded per ledger.New, every
// cfg.Genesis.Alloc entry credited to its account, and every
// cfg.Genesis.Markets entry registered with the clearinghouse. Every
// replica in the validator set must be given an identical cfg.Genesis, so
// that every replica starts from byte-identical state — there is no
// genesis block to distribute it by.
func BuildGenesisState(cfg *Config) (*ledger.Ledger, *market.ClearingHouse, error) {
	l := ledger.New([]ledger.AssetID{0, 1})

	for i, alloc := range cfg.Genesis.Alloc {
		pub, err := crypto.PubKeyFromHex(alloc.PublicKeyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis.alloc[%d].public_key: %w", i, err)
		}
		acct, ok := ledger.AccountFromPublicKey(pub)
		if !ok {
			return nil, nil, fmt.Errorf("genesis.alloc[%d]: public key is not a valid account", i)
		}
		l.Credit(acct, ledger.AssetID(alloc.AssetID), alloc.Amount)
	}

	ch := market.NewClearingHouse(l)
	for _, m := range cfg.Genesis.Markets {
		id := ch.AddMarket(market.AssetID(m.BaseAsset), market.AssetID(m.QuoteAsset), defaultTickDecimals)
		if uint32(id) != m.ID {
			return nil, nil, fmt.Errorf("genesis market %d registered as %d: clearinghouse assigns ids sequentially starting at 0, config order must match", m.ID, id)
		}
	}

	return l, ch, nil
}

// defaultTickDecimals is the tick-size precision every genesis-seeded
// market starts with; spot markets formed later via governance (out of
// scope here) could vary this per market.
const defaultTickDecimals = 4
