package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
)

const auditPrefix = "commit:"

// AuditLog appends one record per committed block to a DB, keyed by view
// number. It exists purely for external observability of what a replica has
// committed; a replica never reads it back to reconstruct state, since
// state lives only in memory and crash recovery is out of scope. Losing the
// log changes nothing about correctness.
type AuditLog struct {
	db DB
}

// NewAuditLog wraps db as an AuditLog.
func NewAuditLog(db DB) *AuditLog {
	return &AuditLog{db: db}
}

// CommitRecord is one committed block's audit entry.
type CommitRecord struct {
	View         consensus.ViewNumber
	BlockHash    consensus.Hash
	NumTxs       int
	NumOrderCmds int
}

func viewKey(view consensus.ViewNumber) []byte {
	key := make([]byte, len(auditPrefix)+8)
	copy(key, auditPrefix)
	binary.BigEndian.PutUint64(key[len(auditPrefix):], uint64(view))
	return key
}

// Append records that block, at view, was committed with the given
// transaction and order-command counts.
func (a *AuditLog) Append(rec CommitRecord) error {
	enc := crypto.NewEncoder()
	enc.Uint64(uint64(rec.View))
	enc.Fixed(rec.BlockHash[:])
	enc.Uint32(uint32(rec.NumTxs))
	enc.Uint32(uint32(rec.NumOrderCmds))
	return a.db.Set(viewKey(rec.View), enc.Build())
}

// Get returns the audit record for view, or ErrNotFound if no block
// committed at that view was logged.
func (a *AuditLog) Get(view consensus.ViewNumber) (CommitRecord, error) {
	data, err := a.db.Get(viewKey(view))
	if err != nil {
		return CommitRecord{}, err
	}
	dec := crypto.NewDecoder(data)
	v, err := dec.Uint64()
	if err != nil {
		return CommitRecord{}, err
	}
	hashBytes, err := dec.Fixed(32)
	if err != nil {
		return CommitRecord{}, err
	}
	numTxs, err := dec.Uint32()
	if err != nil {
		return CommitRecord{}, err
	}
	numOrders, err := dec.Uint32()
	if err != nil {
		return CommitRecord{}, err
	}
	var hash consensus.Hash
	copy(hash[:], hashBytes)
	return CommitRecord{
		View: consensus.ViewNumber(v), BlockHash: hash,
		NumTxs: int(numTxs), NumOrderCmds: int(numOrders),
	}, nil
}

// Range walks every logged record with view >= from, in ascending view
// order, calling fn until it returns false or the iterator is exhausted.
func (a *AuditLog) Range(from consensus.ViewNumber, fn func(CommitRecord) bool) error {
	it := a.db.NewIterator([]byte(auditPrefix))
	defer it.Release()
	for it.Next() {
		dec := crypto.NewDecoder(it.Value())
		v, err := dec.Uint64()
		if err != nil {
			return fmt.Errorf("audit log: corrupt record: %w", err)
		}
		if consensus.ViewNumber(v) < from {
			continue
		}
		hashBytes, err := dec.Fixed(32)
		if err != nil {
			return fmt.Errorf("audit log: corrupt record: %w", err)
		}
		numTxs, err := dec.Uint32()
		if err != nil {
			return fmt.Errorf("audit log: corrupt record: %w", err)
		}
		numOrders, err := dec.Uint32()
		if err != nil {
			return fmt.Errorf("audit log: corrupt record: %w", err)
		}
		var hash consensus.Hash
		copy(hash[:], hashBytes)
		rec := CommitRecord{View: consensus.ViewNumber(v), BlockHash: hash, NumTxs: int(numTxs), NumOrderCmds: int(numOrders)}
		if !fn(rec) {
			break
		}
	}
	return it.Error()
}
