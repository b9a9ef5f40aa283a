package ledger

import "testing"

func TestMempoolInsertRejectsGapAndStale(t *testing.T) {
	m := NewMempool()
	acct, priv := newTestAccount(t)
	other, _ := newTestAccount(t)

	tx0 := signedTransfer(priv, acct, other, 0, 10, 0)
	if !m.Insert(tx0, 0) {
		t.Fatalf("nonce 0 should be admitted")
	}

	tx2 := signedTransfer(priv, acct, other, 0, 10, 2)
	if m.Insert(tx2, 0) {
		t.Fatalf("nonce gap (2, expected 1) should be rejected")
	}

	tx1 := signedTransfer(priv, acct, other, 0, 10, 1)
	if !m.Insert(tx1, 0) {
		t.Fatalf("contiguous nonce 1 should be admitted")
	}

	stale := signedTransfer(priv, acct, other, 0, 10, 0)
	if m.Insert(stale, 0) {
		t.Fatalf("replaying nonce 0 should be rejected")
	}
}

func TestMempoolInsertRejectsBadSignature(t *testing.T) {
	m := NewMempool()
	acct, _ := newTestAccount(t)
	other, otherPriv := newTestAccount(t)

	// Signed by the wrong key for the declared sender.
	tx := signedTransfer(otherPriv, acct, other, 0, 10, 0)
	if m.Insert(tx, 0) {
		t.Fatalf("transaction with invalid signature should be rejected")
	}
}

func TestMempoolPopBatchOrdersByAccountThenNonce(t *testing.T) {
	m := NewMempool()
	a1, p1 := newTestAccount(t)
	a2, p2 := newTestAccount(t)
	dst, _ := newTestAccount(t)

	m.Insert(signedTransfer(p1, a1, dst, 0, 1, 0), 0)
	m.Insert(signedTransfer(p1, a1, dst, 0, 1, 1), 0)
	m.Insert(signedTransfer(p2, a2, dst, 0, 1, 0), 0)

	if got := m.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	batch := m.PopBatch(2)
	if len(batch) != 2 {
		t.Fatalf("PopBatch(2) returned %d txs, want 2", len(batch))
	}
	if m.Len() != 1 {
		t.Fatalf("Len() after pop = %d, want 1", m.Len())
	}

	wantFrom := []Account{a1, a1}
	wantNonce := []uint64{0, 1}
	if a2.String() < a1.String() {
		wantFrom = []Account{a2, a1}
		wantNonce = []uint64{0, 0}
	}
	for i, tx := range batch {
		if tx.Transfer.From != wantFrom[i] || tx.Transfer.Nonce != wantNonce[i] {
			t.Fatalf("batch[%d] = (%s, nonce %d), want (%s, nonce %d)", i, tx.Transfer.From, tx.Transfer.Nonce, wantFrom[i], wantNonce[i])
		}
	}
}

func TestMempoolSyncDropsBelowLedgerNonce(t *testing.T) {
	m := NewMempool()
	acct, priv := newTestAccount(t)
	dst, _ := newTestAccount(t)

	m.Insert(signedTransfer(priv, acct, dst, 0, 1, 0), 0)
	m.Insert(signedTransfer(priv, acct, dst, 0, 1, 1), 0)

	m.Sync(acct, 1)
	// nonce 0 should be gone, nonce 1 remains poppable, and since nonce 1
	// is still queued the next admission is nonce 2.
	if m.Len() != 1 {
		t.Fatalf("Len() after sync = %d, want 1", m.Len())
	}
	if !m.Insert(signedTransfer(priv, acct, dst, 0, 1, 2), 1) {
		t.Fatalf("nonce 2 should now be admitted after sync to 1")
	}
}
