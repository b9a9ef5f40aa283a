package ledger

import "sort"

// Priority is the cross-account dispatch tier a queued transaction belongs
// to. Transactions are drained highest-priority-first; within a tier,
// per-account nonce order still applies.
type Priority int

const (
	// PriorityLiquidation is the highest dispatch tier, reserved for
	// transactions that unwind risk. No transaction variant in this system
	// currently classifies here; the tier exists so the mempool's ordering
	// contract does not need to change if one is added.
	PriorityLiquidation Priority = iota
	// PriorityCancel is for order-cancellation transactions. Like
	// PriorityLiquidation, no transaction variant currently classifies here.
	PriorityCancel
	// PriorityOther is the default tier; every SignedTransaction (the sole
	// variant, Transfer) classifies here today.
	PriorityOther
)

// classify returns tx's dispatch priority. Transfer is the only
// transaction variant this system has, so it always returns PriorityOther;
// the function exists as the single seam a future variant would extend.
func classify(tx *SignedTransaction) Priority {
	_ = tx
	return PriorityOther
}

type accountQueue struct {
	nextExpected uint64
	byNonce      map[uint64]*SignedTransaction
}

// Mempool holds, per account, a contiguous run of not-yet-committed
// transactions starting at that account's next expected nonce. It is owned
// exclusively by one replica task.
type Mempool struct {
	queues map[Account]*accountQueue
}

// NewMempool returns an empty Mempool.
func NewMempool() *Mempool {
	return &Mempool{queues: make(map[Account]*accountQueue)}
}

func (m *Mempool) queueFor(acct Account, ledgerNonce uint64) *accountQueue {
	q, ok := m.queues[acct]
	if !ok {
		q = &accountQueue{nextExpected: ledgerNonce, byNonce: make(map[uint64]*SignedTransaction)}
		m.queues[acct] = q
	}
	return q
}

// Insert admits tx if its signature verifies and its nonce equals the
// account's next expected nonce in this mempool (which starts at
// ledgerNonce the first time the account is seen). A nonce gap is rejected
// rather than buffered; a nonce below next expected is rejected as stale.
func (m *Mempool) Insert(tx *SignedTransaction, ledgerNonce uint64) bool {
	if !tx.VerifySignature() {
		return false
	}
	q := m.queueFor(tx.Transfer.From, ledgerNonce)
	if tx.Transfer.Nonce != q.nextExpected {
		return false
	}
	if _, exists := q.byNonce[tx.Transfer.Nonce]; exists {
		return false
	}
	q.byNonce[tx.Transfer.Nonce] = tx
	q.nextExpected++
	return true
}

// candidate is one poppable transaction together with the ordering keys
// used to select a batch: priority tier, then account, then nonce (for
// stable, deterministic selection across replicas given identical mempool
// contents).
type candidate struct {
	tx       *SignedTransaction
	priority Priority
	account  Account
	nonce    uint64
}

// PopBatch selects up to maxTxs transactions for the next proposed block:
// highest priority tier first, and within a tier, the lowest still-unseen
// nonce per account first (so no account's queue develops a gap from this
// selection alone). Selected transactions are removed from the mempool;
// if the block that carries them never commits they are not returned to
// the mempool.
func (m *Mempool) PopBatch(maxTxs int) []*SignedTransaction {
	var candidates []candidate
	for acct, q := range m.queues {
		// Walk from the lowest buffered nonce; byNonce only ever holds a
		// contiguous run starting at some base <= nextExpected, because
		// Insert only admits the next expected nonce at insertion time.
		nonces := make([]uint64, 0, len(q.byNonce))
		for n := range q.byNonce {
			nonces = append(nonces, n)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		for _, n := range nonces {
			tx := q.byNonce[n]
			candidates = append(candidates, candidate{
				tx:       tx,
				priority: classify(tx),
				account:  acct,
				nonce:    n,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		if candidates[i].account != candidates[j].account {
			return candidates[i].account.String() < candidates[j].account.String()
		}
		return candidates[i].nonce < candidates[j].nonce
	})

	if len(candidates) > maxTxs {
		candidates = candidates[:maxTxs]
	}

	out := make([]*SignedTransaction, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.tx)
		delete(m.queues[c.account].byNonce, c.nonce)
	}
	return out
}

// Sync reconciles account's queue with ledgerNonce, the account's expected
// nonce in the ledger after a commit. Entries below ledgerNonce are
// discarded (already accounted for, successfully or not); nextExpected is
// then recomputed as the first gap at or above ledgerNonce, so transactions
// still legitimately queued above ledgerNonce are not disturbed.
func (m *Mempool) Sync(acct Account, ledgerNonce uint64) {
	q, ok := m.queues[acct]
	if !ok {
		m.queues[acct] = &accountQueue{nextExpected: ledgerNonce, byNonce: make(map[uint64]*SignedTransaction)}
		return
	}
	for n := range q.byNonce {
		if n < ledgerNonce {
			delete(q.byNonce, n)
		}
	}
	next := ledgerNonce
	for {
		if _, ok := q.byNonce[next]; !ok {
			break
		}
		next++
	}
	q.nextExpected = next
}

// Len returns the number of currently buffered, not-yet-popped transactions
// across all accounts.
func (m *Mempool) Len() int {
	n := 0
	for _, q := range m.queues {
		n += len(q.byNonce)
	}
	return n
}
