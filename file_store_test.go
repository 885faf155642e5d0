package tcc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()

	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	tx := NewTransaction()
	tx.Attachments["tenant"] = "acme"
	tx.EnlistParticipant(NewParticipant(
		NewBranchXid(tx.Xid.GlobalID),
		InvocationContext{Resource: "inventory", Method: MethodConfirm, Args: json.RawMessage(`{"sku":"a"}`)},
		InvocationContext{Resource: "inventory", Method: MethodCancel, Args: json.RawMessage(`{"sku":"a"}`)},
		DefaultEditorName,
	))

	_, err := store.Create(ctx, tx)
	require.NoError(t, err)

	found, err := store.FindByXid(ctx, tx.Xid)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tx.Xid, found.Xid)
	assert.Equal(t, "acme", found.Attachments["tenant"])
	require.Len(t, found.Participants, 1)
	assert.Equal(t, "inventory", found.Participants[0].ConfirmInvocation.Resource)
}

func TestFileStoreOptimisticLock(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	tx := NewTransaction()
	_, err := store.Create(ctx, tx)
	require.NoError(t, err)

	stale, err := store.FindByXid(ctx, tx.Xid)
	require.NoError(t, err)

	_, err = store.Update(ctx, tx)
	require.NoError(t, err)

	count, err := store.Update(ctx, stale)
	assert.ErrorIs(t, err, ErrOptimisticLock)
	assert.Zero(t, count)
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	tx := NewTransaction()
	_, err := store.Create(ctx, tx)
	require.NoError(t, err)

	count, err := store.Delete(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.Delete(ctx, tx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFileStoreFindAllUnmodifiedSince(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	stale := NewTransaction()
	stale.LastUpdateTime = time.Now().Add(-time.Hour)
	_, err := store.Create(ctx, stale)
	require.NoError(t, err)

	fresh := NewTransaction()
	_, err = store.Create(ctx, fresh)
	require.NoError(t, err)

	found, err := store.FindAllUnmodifiedSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.Xid, found[0].Xid)
}
