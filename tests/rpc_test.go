package tests

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
	"github.com/tolelom/tolchain/rpc"
)

// newTestRPCHandler starts a single-node replica on its own goroutine and
// returns an RPC handler wired to its inbound channel, matching how
// cmd/node wires rpc.Handler to a live replica.
func newTestRPCHandler(t *testing.T) *rpc.Handler {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	vs := consensus.NewValidatorSet([]crypto.PublicKey{pub})
	l := ledger.New(nil)
	ch := market.NewClearingHouse(l)
	ch.AddMarket(0, 1, 4)
	r := consensus.NewReplica(consensus.NodeID(0), vs, priv, l, ch, time.Millisecond, 2.0)

	inbox := make(chan consensus.Event, 64)
	go r.Run(inbox)
	t.Cleanup(func() { close(inbox) })

	return rpc.NewHandler(inbox)
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

// TestRPCGetAccountUnknown verifies getAccount returns a zero-value account
// snapshot for an address the ledger has never seen.
func TestRPCGetAccountUnknown(t *testing.T) {
	handler := newTestRPCHandler(t)
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	resp := dispatch(handler, "getAccount", map[string]string{"public_key": hex.EncodeToString(pub)})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	info, ok := resp.Result.(*ledger.AccountInfo)
	if !ok || info.ExpectedNonce != 0 || len(info.Balances) != 0 {
		t.Fatalf("unexpected account result: %#v", resp.Result)
	}
}

// TestRPCGetAssetsListsDefaults verifies getAssets surfaces the two
// genesis-seeded assets.
func TestRPCGetAssetsListsDefaults(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getAssets", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	assets, ok := resp.Result.([]market.Asset)
	if !ok || len(assets) != 2 {
		t.Fatalf("unexpected assets result: %#v", resp.Result)
	}
}

// TestRPCGetMarketsListsGenesisMarket verifies getMarkets surfaces the one
// market seeded in newTestRPCHandler.
func TestRPCGetMarketsListsGenesisMarket(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getMarkets", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	markets, ok := resp.Result.([]*market.SpotMarket)
	if !ok || len(markets) != 1 {
		t.Fatalf("unexpected markets result: %#v", resp.Result)
	}
}

// TestRPCGetMarketNotFound verifies getMarket reports an error for an
// unregistered market id.
func TestRPCGetMarketNotFound(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getMarket", map[string]uint32{"market_id": 99})
	if resp.Error == nil {
		t.Fatal("expected error for unknown market")
	}
}

// TestRPCMethodNotFound verifies that unknown methods return a -32601 error.
func TestRPCMethodNotFound(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "nonExistentMethod", struct{}{})
	if resp.Error == nil {
		t.Error("expected error for unknown method")
	}
	if resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeMethodNotFound)
	}
}
