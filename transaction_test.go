package tcc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionDefaults(t *testing.T) {
	tx := NewTransaction()

	assert.Equal(t, Trying, tx.Status)
	assert.Equal(t, Root, tx.Type)
	assert.Equal(t, int64(1), tx.Version)
	assert.Zero(t, tx.RetryCount)
	assert.False(t, tx.Xid.IsZero())
	assert.Empty(t, tx.Participants)
}

func TestNewBranchTransactionSharesXid(t *testing.T) {
	txc := &TransactionContext{Xid: NewXid(), Status: Trying}
	tx := NewBranchTransaction(txc)

	assert.Equal(t, txc.Xid, tx.Xid)
	assert.Equal(t, Branch, tx.Type)
	assert.Equal(t, Trying, tx.Status)
}

func TestTransactionCommitAppliesInEnlistmentOrder(t *testing.T) {
	registry := NewResourceRegistry()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, registry.Register(NewResource(name,
			func(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
				order = append(order, name)
				return nil
			},
			func(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
				return nil
			},
		)))
	}

	tx := NewTransaction()
	for _, name := range []string{"first", "second", "third"} {
		tx.EnlistParticipant(NewParticipant(
			NewBranchXid(tx.Xid.GlobalID),
			InvocationContext{Resource: name, Method: MethodConfirm, Args: json.RawMessage(`{}`)},
			InvocationContext{Resource: name, Method: MethodCancel, Args: json.RawMessage(`{}`)},
			DefaultEditorName,
		))
	}

	require.NoError(t, tx.Commit(context.Background(), registry))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestTransactionRollbackStopsAtFirstFailure(t *testing.T) {
	registry := NewResourceRegistry()
	first := newCountingResource("first")
	second := newCountingResource("second")
	second.cancelErr = assert.AnError
	third := newCountingResource("third")
	require.NoError(t, registry.Register(first))
	require.NoError(t, registry.Register(second))
	require.NoError(t, registry.Register(third))

	tx := NewTransaction()
	for _, name := range []string{"first", "second", "third"} {
		tx.EnlistParticipant(NewParticipant(
			NewBranchXid(tx.Xid.GlobalID),
			InvocationContext{Resource: name, Method: MethodConfirm, Args: json.RawMessage(`{}`)},
			InvocationContext{Resource: name, Method: MethodCancel, Args: json.RawMessage(`{}`)},
			DefaultEditorName,
		))
	}

	err := tx.Rollback(context.Background(), registry)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, first.cancelCount())
	assert.Zero(t, third.cancelCount(), "participants after the failure are not reached")
}

func TestParticipantReplayStatus(t *testing.T) {
	registry := NewResourceRegistry()

	var confirmStatus, cancelStatus Status
	require.NoError(t, registry.Register(NewResource("inventory",
		func(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
			confirmStatus = txc.Status
			return nil
		},
		func(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
			cancelStatus = txc.Status
			return nil
		},
	)))

	p := NewParticipant(
		NewBranchXid("g"),
		InvocationContext{Resource: "inventory", Method: MethodConfirm, Args: json.RawMessage(`{}`)},
		InvocationContext{Resource: "inventory", Method: MethodCancel, Args: json.RawMessage(`{}`)},
		DefaultEditorName,
	)

	require.NoError(t, p.Commit(context.Background(), registry))
	assert.Equal(t, Confirming, confirmStatus, "confirm replays carry the CONFIRMING phase")

	require.NoError(t, p.Rollback(context.Background(), registry))
	assert.Equal(t, Cancelling, cancelStatus, "cancel replays carry the CANCELLING phase")
}

func TestParticipantUnknownResource(t *testing.T) {
	registry := NewResourceRegistry()

	p := NewParticipant(
		NewBranchXid("g"),
		InvocationContext{Resource: "missing", Method: MethodConfirm, Args: json.RawMessage(`{}`)},
		InvocationContext{Resource: "missing", Method: MethodCancel, Args: json.RawMessage(`{}`)},
		DefaultEditorName,
	)
	assert.Error(t, p.Commit(context.Background(), registry))
}

func TestBranchXidSharesGlobalID(t *testing.T) {
	root := NewXid()
	branch := NewBranchXid(root.GlobalID)

	assert.Equal(t, root.GlobalID, branch.GlobalID)
	assert.NotEqual(t, root.BranchID, branch.BranchID)
	assert.Equal(t, branch.GlobalID+":"+branch.BranchID, branch.String())
}

func TestResetRetryCount(t *testing.T) {
	tx := NewTransaction()
	tx.AddRetryCount()
	tx.AddRetryCount()
	assert.Equal(t, 2, tx.RetryCount)

	tx.ResetRetryCount(0)
	assert.Zero(t, tx.RetryCount)
}
