package tcc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore provides a file-based implementation of TransactionStore that
// persists each transaction as one file on disk, encoded by the configured
// serializer. It is a single-node durable backend; the optimistic version
// check is enforced under the store lock through read-modify-write.
type FileStore struct {
	basePath   string
	serializer Serializer
	mu         sync.Mutex // Protects file operations
}

// NewFileStore creates a file-based store writing under the given directory.
// A nil serializer defaults to JSON.
func NewFileStore(basePath string, serializer Serializer) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	if serializer == nil {
		serializer = NewJSONSerializer()
	}

	return &FileStore{
		basePath:   basePath,
		serializer: serializer,
	}, nil
}

// Create implements the TransactionStore interface.
func (f *FileStore) Create(ctx context.Context, tx *Transaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	filename := f.filename(tx.Xid)
	if _, err := os.Stat(filename); err == nil {
		return 0, ErrConcurrentTransaction
	}

	if err := f.write(filename, tx); err != nil {
		return 0, err
	}
	return 1, nil
}

// Update implements the TransactionStore interface.
func (f *FileStore) Update(ctx context.Context, tx *Transaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.read(f.filename(tx.Xid))
	if err != nil {
		return 0, err
	}
	if stored == nil || stored.Version != tx.Version {
		return 0, ErrOptimisticLock
	}

	tx.Version++
	tx.LastUpdateTime = time.Now()

	if err := f.write(f.filename(tx.Xid), tx); err != nil {
		return 0, err
	}
	return 1, nil
}

// Delete implements the TransactionStore interface.
func (f *FileStore) Delete(ctx context.Context, tx *Transaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filename(tx.Xid)); err != nil {
		if os.IsNotExist(err) {
			// Already deleted, not an error.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to delete transaction file: %w", err)
	}
	return 1, nil
}

// FindByXid implements the TransactionStore interface.
func (f *FileStore) FindByXid(ctx context.Context, xid Xid) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read(f.filename(xid))
}

// FindAllUnmodifiedSince implements the TransactionStore interface.
func (f *FileStore) FindAllUnmodifiedSince(ctx context.Context, cutoff time.Time) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction files: %w", err)
	}

	var stale []*Transaction
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tcc") {
			continue
		}
		tx, err := f.read(filepath.Join(f.basePath, entry.Name()))
		if err != nil {
			return nil, err
		}
		if tx != nil && tx.LastUpdateTime.Before(cutoff) {
			stale = append(stale, tx)
		}
	}
	return stale, nil
}

// read returns the decoded transaction, or nil when the file is absent.
func (f *FileStore) read(filename string) (*Transaction, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read transaction file: %w", err)
	}
	return f.serializer.Deserialize(data)
}

func (f *FileStore) write(filename string, tx *Transaction) error {
	data, err := f.serializer.Serialize(tx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write transaction file: %w", err)
	}
	return nil
}

// filename returns the full path for a transaction's file.
func (f *FileStore) filename(xid Xid) string {
	return filepath.Join(f.basePath, xid.GlobalID+"-"+xid.BranchID+".tcc")
}
