package consensus

import (
	"testing"
	"time"

	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// newSingleNodeReplica builds a replica alone in its own validator set
// (n=1, f=0, Q=1), so every view it proposes commits without needing any
// remote peer to vote.
func newSingleNodeReplica(t *testing.T) *Replica {
	t.Helper()
	vs, privs := newTestValidatorSet(t, 1)
	l := ledger.New([]ledger.AssetID{0, 1})
	ch := market.NewClearingHouse(l)
	ch.AddMarket(0, 1, 4)
	return NewReplica(NodeID(0), vs, privs[0], l, ch, time.Millisecond, 2.0)
}

// drainOutbox discards anything queued for a remote peer. leaderStep and
// broadcast always also deliver inline to the replica itself, so a
// single-node set never needs to re-dispatch what lands here.
func drainOutbox(r *Replica) {
	for {
		select {
		case <-r.Outbox:
		default:
			return
		}
	}
}

// tickUntil repeatedly lets the pacemaker time out and steps the replica,
// until cond reports true or the deadline passes.
func tickUntil(t *testing.T, r *Replica, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
		r.Step(Event{Kind: EventTimerTick})
		drainOutbox(r)
	}
}

func TestSingleNodeDripCommitsAndIsQueryable(t *testing.T) {
	r := newSingleNodeReplica(t)

	var commits int
	r.OnCommit = func(b *Block) { commits++ }

	_, recipientPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	recipient, _ := ledger.AccountFromPublicKey(recipientPub)

	reply := make(chan error, 1)
	r.Step(Event{Kind: EventDrip, Drip: &DripRequest{Account: recipient, AssetID: 0, Reply: reply}})
	if err := <-reply; err != nil {
		t.Fatalf("drip admission failed: %v", err)
	}

	tickUntil(t, r, func() bool { return commits >= 1 })

	queryReply := make(chan QueryResponse, 1)
	r.Step(Event{Kind: EventQuery, Query: &QueryRequest{Kind: QueryAccount, Account: recipient, Reply: queryReply}})
	resp := <-queryReply
	if resp.Err != nil {
		t.Fatalf("query failed: %v", resp.Err)
	}
	if resp.Account == nil || resp.Account.BalanceOf(0).Available != ledger.DripAmount {
		t.Fatalf("recipient balance after drip = %+v, want %d", resp.Account, ledger.DripAmount)
	}
}

func TestSingleNodeTransactionCommits(t *testing.T) {
	r := newSingleNodeReplica(t)

	senderPriv, senderPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	sender, _ := ledger.AccountFromPublicKey(senderPub)
	_, recipientPub, _ := crypto.GenerateKeyPair()
	recipient, _ := ledger.AccountFromPublicKey(recipientPub)

	// Fund sender via the faucet first.
	reply := make(chan error, 1)
	r.Step(Event{Kind: EventDrip, Drip: &DripRequest{Account: sender, AssetID: 0, Reply: reply}})
	if err := <-reply; err != nil {
		t.Fatalf("drip admission failed: %v", err)
	}
	var commits int
	r.OnCommit = func(b *Block) { commits++ }
	tickUntil(t, r, func() bool { return commits >= 1 })

	tx := &ledger.SignedTransaction{Transfer: ledger.Transfer{
		From: sender, To: recipient, AssetID: 0, Amount: 100, Nonce: 0,
	}}
	tx.Sign(senderPriv)
	r.Step(Event{Kind: EventTransaction, Tx: tx})

	priorCommits := commits
	tickUntil(t, r, func() bool { return commits > priorCommits })

	queryReply := make(chan QueryResponse, 1)
	r.Step(Event{Kind: EventQuery, Query: &QueryRequest{Kind: QueryAccount, Account: recipient, Reply: queryReply}})
	resp := <-queryReply
	if resp.Err != nil {
		t.Fatalf("query failed: %v", resp.Err)
	}
	if resp.Account == nil || resp.Account.BalanceOf(0).Available != 100 {
		t.Fatalf("recipient balance after transfer = %+v, want 100", resp.Account)
	}
}

func TestQueryAssetListsDefaultRegistry(t *testing.T) {
	r := newSingleNodeReplica(t)
	reply := make(chan QueryResponse, 1)
	r.Step(Event{Kind: EventQuery, Query: &QueryRequest{Kind: QueryAsset, Reply: reply}})
	resp := <-reply
	if resp.Err != nil {
		t.Fatalf("asset query failed: %v", resp.Err)
	}
	if len(resp.Assets) != 2 || resp.Assets[0].Symbol != "SUPE" || resp.Assets[1].Symbol != "USD" {
		t.Fatalf("assets = %+v, want [SUPE USD]", resp.Assets)
	}
}

func TestQueryMarketsAndMarketInfo(t *testing.T) {
	r := newSingleNodeReplica(t)

	marketsReply := make(chan QueryResponse, 1)
	r.Step(Event{Kind: EventQuery, Query: &QueryRequest{Kind: QueryMarkets, Reply: marketsReply}})
	resp := <-marketsReply
	if resp.Err != nil || len(resp.Markets) != 1 {
		t.Fatalf("markets query = %+v, err %v", resp.Markets, resp.Err)
	}

	infoReply := make(chan QueryResponse, 1)
	r.Step(Event{Kind: EventQuery, Query: &QueryRequest{Kind: QueryMarketInfo, MarketID: resp.Markets[0].ID, Reply: infoReply}})
	infoResp := <-infoReply
	if infoResp.Err != nil || infoResp.Market == nil {
		t.Fatalf("market info query failed: %v", infoResp.Err)
	}
}
