// Package market implements the price-time-priority spot limit order book:
// levels, limit/market order matching, cancellation with amortised pruning,
// and the clearinghouse that settles fills against the ledger.
package market

import (
	"sort"

	"github.com/tolelom/tolchain/ledger"
)

// AssetID aliases the ledger's asset identifier so order book code never
// has to convert between the two.
type AssetID = ledger.AssetID

// Account aliases the ledger's account identifier.
type Account = ledger.Account

// Asset describes one fungible asset tradeable on the exchange.
type Asset struct {
	ID       AssetID
	Symbol   string
	Decimals uint8
}

// AssetRegistry is the process-wide set of known assets.
type AssetRegistry struct {
	assets map[AssetID]Asset
}

// DefaultAssetRegistry seeds the two default assets used throughout tests
// and the faucet: SUPE (id 0) and USD (id 1), both with 4 decimals,
// mirroring the reference system's own default asset seeding.
func DefaultAssetRegistry() *AssetRegistry {
	r := &AssetRegistry{assets: make(map[AssetID]Asset)}
	r.Add(Asset{ID: 0, Symbol: "SUPE", Decimals: 4})
	r.Add(Asset{ID: 1, Symbol: "USD", Decimals: 4})
	return r
}

// Add registers asset, overwriting any prior entry with the same ID.
func (r *AssetRegistry) Add(asset Asset) {
	r.assets[asset.ID] = asset
}

// Get returns the asset registered under id, if any.
func (r *AssetRegistry) Get(id AssetID) (Asset, bool) {
	a, ok := r.assets[id]
	return a, ok
}

// IDs returns every registered asset id.
func (r *AssetRegistry) IDs() []AssetID {
	ids := make([]AssetID, 0, len(r.assets))
	for id := range r.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// All returns every registered asset, sorted by id, for answering an
// AssetQuery with a deterministic, reproducible ordering.
func (r *AssetRegistry) All() []Asset {
	ids := r.IDs()
	out := make([]Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.assets[id])
	}
	return out
}
