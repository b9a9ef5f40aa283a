package consensus

import (
	"fmt"
	"time"

	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// BlockTransactionLength caps the number of transactions a leader packs
// into a single proposed block. It is a fixed constant, not adaptive to
// mempool pressure (see Open Question 3 in the design notes).
const BlockTransactionLength = 16

// EventKind tags the inbound events a replica's step function dispatches
// on.
type EventKind int

const (
	EventHotStuffMessage EventKind = iota
	EventTransaction
	EventOrderCommand
	EventQuery
	EventDrip
	EventTimerTick
)

// QueryKind tags the four read-only requests a client can issue against a
// running replica.
type QueryKind int

const (
	QueryAccount QueryKind = iota
	QueryAsset
	QueryMarkets
	QueryMarketInfo
)

// QueryRequest carries a single-shot reply channel; the replica snapshots
// the relevant state and completes the reply synchronously within the
// same step that dequeued the request.
type QueryRequest struct {
	Kind     QueryKind
	Account  ledger.Account
	MarketID market.MarketID
	Reply    chan QueryResponse
}

// QueryResponse is the synchronous reply to a QueryRequest.
type QueryResponse struct {
	Account *ledger.AccountInfo
	Assets  []market.Asset
	Markets []*market.SpotMarket
	Market  *market.SpotMarket
	Err     error
}

// DripRequest asks the replica to send an account ledger.DripAmount of asset
// out of the faucet. The reply arrives once the faucet transfer is admitted
// to the mempool, not once it commits. Amount is not read: every drip
// transfers ledger.DripAmount.
type DripRequest struct {
	Account ledger.Account
	AssetID ledger.AssetID
	Amount  uint64
	Reply   chan error
}

// Event is the tagged union of everything that can arrive on a replica's
// inbound mailbox.
type Event struct {
	Kind     EventKind
	Message  HotStuffMessage
	Tx       *ledger.SignedTransaction
	OrderCmd *market.SignedOrderCommand
	Query    *QueryRequest
	Drip     *DripRequest
}

// OutboundMessage is one HotStuff message the replica wants delivered,
// either to a single named peer or broadcast to all of them.
type OutboundMessage struct {
	Broadcast bool
	To        NodeID
	Message   HotStuffMessage
}

// viewProgress tracks, for the current view only, whether this replica's
// leader step has already proposed and whether this replica has already
// voted — reset every time the view advances. This is distinct from
// SafetyState's permanent "never vote twice" bookkeeping, which persists
// across views.
type viewProgress struct {
	leaderHasProposed bool
	replicaHasVoted   bool
}

// Replica is the per-node HotStuff + execution-engine orchestrator. Every
// field below is touched exclusively from inside Step/Run; nothing outside
// this type's methods may read or write them concurrently.
type Replica struct {
	nodeID     NodeID
	validators *ValidatorSet
	signKey    crypto.PrivateKey

	genericQC *QuorumCertificate
	safety    *SafetyState
	blocks    *BlockStore
	window    *MessageWindow
	pacemaker *Pacemaker
	progress  viewProgress

	mempool      *ledger.Mempool
	orderMempool *market.OrderCommandMempool
	pending      map[ledger.TxHash]*ledger.SignedTransaction
	committed    map[ledger.TxHash]*ledger.Receipt

	ledger   *ledger.Ledger
	clearing *market.ClearingHouse
	assets   *market.AssetRegistry

	Outbox chan OutboundMessage

	// OnCommit, if set, is invoked synchronously with every block as it
	// commits, after its transactions and order commands have already been
	// applied. It exists solely for external observability (an audit log);
	// nothing in the replica depends on its return.
	OnCommit func(b *Block)
}

// NewReplica constructs a replica at Genesis, locked on the Genesis QC.
func NewReplica(id NodeID, validators *ValidatorSet, signKey crypto.PrivateKey, l *ledger.Ledger, ch *market.ClearingHouse, baseTimeout time.Duration, multiplier float64) *Replica {
	return &Replica{
		nodeID:       id,
		validators:   validators,
		signKey:      signKey,
		genericQC:    GenesisQC(),
		safety:       NewSafetyState(),
		blocks:       NewBlockStore(),
		window:       NewMessageWindow(),
		pacemaker:    NewPacemaker(validators, baseTimeout, multiplier),
		mempool:      ledger.NewMempool(),
		orderMempool: market.NewOrderCommandMempool(),
		pending:      make(map[ledger.TxHash]*ledger.SignedTransaction),
		committed:    make(map[ledger.TxHash]*ledger.Receipt),
		ledger:       l,
		clearing:     ch,
		assets:       market.DefaultAssetRegistry(),
		Outbox:       make(chan OutboundMessage, 256),
	}
}

// quorumSize returns Q(n) for this replica's validator set.
func (r *Replica) quorumSize() int {
	return Quorum(r.validators.Len())
}

// send enqueues msg for delivery to a single peer, or to self (handled
// inline) if to == r.nodeID.
func (r *Replica) send(to NodeID, msg HotStuffMessage) {
	if to == r.nodeID {
		r.Step(Event{Kind: EventHotStuffMessage, Message: msg})
		return
	}
	r.Outbox <- OutboundMessage{To: to, Message: msg}
}

func (r *Replica) broadcast(msg HotStuffMessage) {
	r.Outbox <- OutboundMessage{Broadcast: true, Message: msg}
	// The leader participates as an ordinary replica too (spec.md §4.5
	// step 3: "Immediately feed this Proposal into the replica step").
	r.Step(Event{Kind: EventHotStuffMessage, Message: msg})
}

// Step processes a single inbound event to completion. It never blocks.
func (r *Replica) Step(ev Event) {
	switch ev.Kind {
	case EventHotStuffMessage:
		r.handleHotStuffMessage(ev.Message)
	case EventTransaction:
		r.handleTransaction(ev.Tx)
	case EventOrderCommand:
		r.handleOrderCommand(ev.OrderCmd)
	case EventQuery:
		r.handleQuery(ev.Query)
	case EventDrip:
		r.handleDrip(ev.Drip)
	case EventTimerTick:
		r.handleTimerTick()
	}
}

// handleHotStuffMessage implements spec.md §4.5 steps 1-3 (view sync,
// admission, leader step) common to every message kind, then dispatches to
// the per-kind replica step (4/5/6).
func (r *Replica) handleHotStuffMessage(msg HotStuffMessage) {
	// Step 1: view sync.
	if msg.View > r.pacemaker.CurrentView() {
		r.pacemaker.FastForwardView(msg.View)
		r.progress = viewProgress{}
		if r.pacemaker.CurrentLeader() == r.nodeID {
			selfNewView := NewNewView(r.pacemaker.CurrentView()-1, r.nodeID, r.genericQC)
			r.window.Push(selfNewView)
		}
	}

	// Step 2: admit (drop stale messages below the window floor).
	if msg.View >= r.window.Oldest() {
		r.window.Push(msg)
	}

	// Step 3: leader step.
	if r.pacemaker.CurrentLeader() == r.nodeID && !r.progress.leaderHasProposed {
		r.leaderStep()
	}

	// Steps 4-6: per-kind replica step.
	switch msg.Kind {
	case MsgProposal:
		r.onProposal(msg)
	case MsgVote:
		r.onVote(msg)
	case MsgNewView:
		// Ignored by non-leaders; leaders already consumed the window
		// entry above via leaderStep.
	}
}

// leaderStep implements spec.md §4.5 step 3.
func (r *Replica) leaderStep() {
	prevView := r.pacemaker.CurrentView() - 1

	newViewMsgs := filterKind(r.window.Messages(prevView), MsgNewView)
	if len(newViewMsgs) >= r.quorumSize() && r.genericQC.View != prevView {
		if qc := highestJustify(newViewMsgs, r.genericQC); qc != nil {
			r.genericQC = qc
		}
		r.window.PruneBefore(prevView)
	} else if voteMsgs := filterKind(r.window.Messages(prevView), MsgVote); len(voteMsgs) >= r.quorumSize() {
		if qc := r.assembleQCFromVotes(prevView, voteMsgs); qc != nil {
			r.genericQC = qc
			r.window.PruneBefore(prevView)
		}
	}

	if _, ok := r.blocks.Get(r.genericQC.BlockHash); !ok {
		return
	}

	txs := r.mempool.PopBatch(BlockTransactionLength)
	orderCmds := r.orderMempool.PopBatch(BlockTransactionLength)
	cmd := ClientCommand{Transactions: txs, OrderCommands: orderCmds}
	block := NewBlock(r.pacemaker.CurrentView(), r.genericQC.BlockHash, cmd, r.genericQC)
	r.blocks.Put(block)
	r.progress.leaderHasProposed = true

	r.broadcast(NewProposal(r.pacemaker.CurrentView(), r.nodeID, block))
}

// assembleQCFromVotes groups vote messages by the block hash they name,
// dedupes signers within each group, verifies each signature, and returns
// a certificate for the first group whose valid, distinct signer count
// reaches quorum.
func (r *Replica) assembleQCFromVotes(view ViewNumber, votes []HotStuffMessage) *QuorumCertificate {
	byBlock := make(map[Hash][]HotStuffMessage)
	for _, v := range votes {
		byBlock[v.VoteBlockHash] = append(byBlock[v.VoteBlockHash], v)
	}
	for blockHash, group := range byBlock {
		preimage := qcSigningPreimage(view, blockHash)
		seen := make(map[NodeID]bool)
		var sigs []PartialSig
		for _, v := range group {
			if seen[v.Sender] {
				continue
			}
			pub, ok := r.validators.PublicKey(v.Sender)
			if !ok || !crypto.VerifyRaw(pub, preimage, v.VoteSig) {
				continue
			}
			seen[v.Sender] = true
			sigs = append(sigs, PartialSig{Signer: v.Sender, Signature: v.VoteSig})
		}
		if len(sigs) >= r.quorumSize() {
			return NewQuorumCertificateFromSignatures(view, blockHash, sigs)
		}
	}
	return nil
}

// onProposal implements spec.md §4.5 step 4: admission, safety check, vote
// emission, and the three-chain commit advance.
func (r *Replica) onProposal(msg HotStuffMessage) {
	if r.pacemaker.LeaderForView(msg.View) != msg.Sender {
		return
	}
	block := msg.Block
	if block == nil {
		return
	}
	r.blocks.Put(block)

	bDoublePrime, ok := r.blocks.Get(block.Justify.BlockHash)
	if !ok {
		return
	}
	if err := r.safety.SafeNode(r.blocks, block, block.Justify); err != nil {
		return
	}
	if err := block.Justify.Verify(r.validators); err != nil {
		return
	}
	if !block.VerifyMerkleRoot() {
		return
	}

	vote := NewVote(block.View, r.nodeID, block.Hash(), r.signKey)
	r.safety.RecordVote(block.View)
	r.progress.replicaHasVoted = true
	for _, tx := range block.Cmd.Transactions {
		r.pending[tx.Hash()] = tx
	}

	leader := r.pacemaker.LeaderForView(block.View + 1)
	r.send(leader, vote)

	r.advanceThreeChain(block, bDoublePrime)
}

// advanceThreeChain implements spec.md §4.5 step 4's three-chain rule:
// b* (the newly proposed block) justifies b″; b″ justifies b′; b′
// justifies b. Each link is accepted only if the claimed parent relation
// actually holds in the block store; b is committed once all three links
// check out.
func (r *Replica) advanceThreeChain(bStar, bDoublePrime *Block) {
	if bStar.ParentHash != bDoublePrime.Hash() {
		return
	}
	r.genericQC = bStar.Justify
	r.window.PruneBefore(bStar.View)

	// The Genesis block carries no justify QC, so the chain ends there.
	if bDoublePrime.Justify == nil {
		return
	}
	bPrime, ok := r.blocks.Get(bDoublePrime.Justify.BlockHash)
	if !ok || bDoublePrime.ParentHash != bPrime.Hash() {
		return
	}
	r.safety.UpdateLockedQC(bDoublePrime.Justify)
	r.pacemaker.OnCommit(bDoublePrime.Justify.View)

	if bPrime.Justify == nil {
		return
	}
	b, ok := r.blocks.Get(bPrime.Justify.BlockHash)
	if !ok || bPrime.ParentHash != b.Hash() {
		return
	}
	r.commitBlock(b)
}

// commitBlock applies b's transactions and order commands to the ledger
// and clearinghouse, moves them from pending to committed, and syncs the
// mempool to the resulting per-account nonces.
func (r *Replica) commitBlock(b *Block) {
	for _, tx := range b.Cmd.Transactions {
		status := r.ledger.ApplyTransfer(tx)
		h := tx.Hash()
		delete(r.pending, h)
		r.committed[h] = &ledger.Receipt{TxHash: h, BlockHeight: uint64(b.View), Status: status}
		r.mempool.Sync(tx.Transfer.From, r.ledger.Account(tx.Transfer.From).ExpectedNonce)
	}
	for _, oc := range b.Cmd.OrderCommands {
		_, _ = oc.Command.Apply(r.clearing)
	}
	if r.OnCommit != nil {
		r.OnCommit(b)
	}
}

// onVote implements spec.md §4.5 step 5: the leader of the next view may
// advance early once it has both voted itself and observed a quorum of
// votes for the current view.
func (r *Replica) onVote(msg HotStuffMessage) {
	nextLeader := r.pacemaker.LeaderForView(r.pacemaker.CurrentView() + 1)
	if nextLeader != r.nodeID || !r.progress.replicaHasVoted {
		return
	}
	votes := filterKind(r.window.Messages(r.pacemaker.CurrentView()), MsgVote)
	if len(votes) < r.quorumSize() {
		return
	}

	prevView := r.pacemaker.CurrentView()
	r.pacemaker.AdvanceView()
	r.progress = viewProgress{}
	r.send(r.nodeID, NewNewView(prevView, r.nodeID, r.genericQC))
}

// handleTransaction implements the Transaction ingress rule: a transaction
// whose signature verifies is inserted into the mempool keyed against the
// sender's current expected nonce; everything else is silently discarded.
func (r *Replica) handleTransaction(tx *ledger.SignedTransaction) {
	if tx == nil || !tx.VerifySignature() {
		return
	}
	expected := r.ledger.Account(tx.Transfer.From).ExpectedNonce
	r.mempool.Insert(tx, expected)
}

// handleOrderCommand admits a signed order command into the order-command
// mempool, to be packed into a future block alongside transfers.
func (r *Replica) handleOrderCommand(cmd *market.SignedOrderCommand) {
	if cmd == nil {
		return
	}
	r.orderMempool.Insert(cmd)
}

// handleDrip implements Drip ingress (spec.md §6): it builds and signs a
// faucet-origin transfer of ledger.DripAmount of the requested asset to
// the target account and admits it into the ordinary transaction mempool,
// so it commits through the same consensus path, nonce sequencing and
// balance checks as any client-submitted transfer. The reply only
// confirms admission, not commitment.
func (r *Replica) handleDrip(drip *DripRequest) {
	if drip == nil {
		return
	}
	expected := r.ledger.Account(ledger.FaucetAccount).ExpectedNonce
	tx := &ledger.SignedTransaction{Transfer: ledger.Transfer{
		From:    ledger.FaucetAccount,
		To:      drip.Account,
		AssetID: drip.AssetID,
		Amount:  ledger.DripAmount,
		Nonce:   expected,
	}}
	tx.Sign(ledger.FaucetPrivateKey)
	if !r.mempool.Insert(tx, expected) {
		drip.Reply <- fmt.Errorf("drip: faucet transfer not admitted (nonce race)")
		return
	}
	drip.Reply <- nil
}

// handleQuery implements Query ingress: a synchronous snapshot reply
// completed within this step.
func (r *Replica) handleQuery(q *QueryRequest) {
	if q == nil {
		return
	}
	var resp QueryResponse
	switch q.Kind {
	case QueryAccount:
		info := r.ledger.Account(q.Account)
		resp.Account = &info
	case QueryAsset:
		resp.Assets = r.assets.All()
	case QueryMarkets:
		resp.Markets = r.clearing.Markets()
	case QueryMarketInfo:
		m, ok := r.clearing.Market(q.MarketID)
		if !ok {
			resp.Err = fmt.Errorf("market %d not found", q.MarketID)
		} else {
			resp.Market = m
		}
	}
	q.Reply <- resp
}

// handleTimerTick implements the Timer tick rule: if the pacemaker's
// current view has timed out, advance past it and notify the next leader.
func (r *Replica) handleTimerTick() {
	if !r.pacemaker.Expired() {
		return
	}
	prevView := r.pacemaker.CurrentView()
	r.pacemaker.AdvanceView()
	r.progress = viewProgress{}

	leader := r.pacemaker.CurrentLeader()
	r.send(leader, NewNewView(prevView, r.nodeID, r.genericQC))
}

// Run drives the replica loop: pull the next inbound event or react to the
// pacemaker timer, whichever comes first, forever (until inbox closes).
func (r *Replica) Run(inbox <-chan Event) {
	for {
		remaining := r.pacemaker.TimeRemaining()
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		select {
		case ev, ok := <-inbox:
			timer.Stop()
			if !ok {
				return
			}
			r.Step(ev)
		case <-timer.C:
			r.Step(Event{Kind: EventTimerTick})
		}
	}
}

func filterKind(msgs []HotStuffMessage, kind MessageKind) []HotStuffMessage {
	var out []HotStuffMessage
	for _, m := range msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// highestJustify returns the highest-view QC among a set of NewView
// messages and the replica's own current generic QC, implementing the
// "highest QC across received messages" rule from spec.md §4.1.
func highestJustify(newViewMsgs []HotStuffMessage, current *QuorumCertificate) *QuorumCertificate {
	best := current
	for _, m := range newViewMsgs {
		if m.HighQC != nil && (best == nil || m.HighQC.View > best.View) {
			best = m.HighQC
		}
	}
	return best
}

