package tcc

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// TransactionStore defines the interface for durable transaction
// persistence. Implementations must support a version-matched conditional
// update: Update only succeeds when the stored version equals the version of
// the transaction being written, which is what lets multiple coordinator
// instances race on the same record without double-applying confirm or
// cancel.
//
// All methods return the number of records affected alongside any error.
type TransactionStore interface {
	// Create inserts a new record. It fails with ErrConcurrentTransaction
	// when the xid already exists.
	Create(ctx context.Context, tx *Transaction) (int, error)

	// Update writes the record only if the stored version matches
	// tx.Version. On success it increments tx.Version and refreshes
	// tx.LastUpdateTime; on mismatch it affects zero rows and fails with
	// ErrOptimisticLock.
	Update(ctx context.Context, tx *Transaction) (int, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, tx *Transaction) (int, error)

	// FindByXid retrieves a transaction by id, or nil when absent.
	FindByXid(ctx context.Context, xid Xid) (*Transaction, error)

	// FindAllUnmodifiedSince returns transactions whose LastUpdateTime is
	// older than the cutoff: the working set for recovery.
	FindAllUnmodifiedSince(ctx context.Context, cutoff time.Time) ([]*Transaction, error)
}

// MemoryStore provides an in-memory implementation of TransactionStore for
// testing or scenarios where durability is not required. Records are kept in
// an ordered map keyed by xid so recovery scans are deterministic, and every
// read and write passes through the serializer so callers never alias stored
// state.
type MemoryStore struct {
	mu         sync.Mutex
	items      *btree.Map[string, *Transaction]
	serializer Serializer
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      btree.NewMap[string, *Transaction](16),
		serializer: NewJSONSerializer(),
	}
}

// Create implements the TransactionStore interface.
func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tx.Xid.String()
	if _, exists := m.items.Get(key); exists {
		return 0, ErrConcurrentTransaction
	}

	stored, err := m.serializer.Clone(tx)
	if err != nil {
		return 0, err
	}
	m.items.Set(key, stored)
	return 1, nil
}

// Update implements the TransactionStore interface.
func (m *MemoryStore) Update(ctx context.Context, tx *Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tx.Xid.String()
	stored, exists := m.items.Get(key)
	if !exists || stored.Version != tx.Version {
		return 0, ErrOptimisticLock
	}

	tx.Version++
	tx.LastUpdateTime = time.Now()

	updated, err := m.serializer.Clone(tx)
	if err != nil {
		return 0, err
	}
	m.items.Set(key, updated)
	return 1, nil
}

// Delete implements the TransactionStore interface.
func (m *MemoryStore) Delete(ctx context.Context, tx *Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, deleted := m.items.Delete(tx.Xid.String()); !deleted {
		return 0, nil
	}
	return 1, nil
}

// FindByXid implements the TransactionStore interface.
func (m *MemoryStore) FindByXid(ctx context.Context, xid Xid) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.items.Get(xid.String())
	if !exists {
		return nil, nil
	}
	return m.serializer.Clone(stored)
}

// FindAllUnmodifiedSince implements the TransactionStore interface.
func (m *MemoryStore) FindAllUnmodifiedSince(ctx context.Context, cutoff time.Time) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*Transaction
	var cloneErr error
	m.items.Scan(func(key string, stored *Transaction) bool {
		if !stored.LastUpdateTime.Before(cutoff) {
			return true
		}
		tx, err := m.serializer.Clone(stored)
		if err != nil {
			cloneErr = err
			return false
		}
		stale = append(stale, tx)
		return true
	})
	if cloneErr != nil {
		return nil, cloneErr
	}
	return stale, nil
}
