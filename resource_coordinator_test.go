package tcc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorPassThroughWithoutTransaction(t *testing.T) {
	manager, _, _ := newTestManager(t)
	coordinator := NewResourceCoordinator(manager, nil)

	ran := false
	result, err := coordinator.Execute(context.Background(),
		Compensable{Resource: "inventory"},
		&orderArgs{SKU: "a-1"},
		func(ctx context.Context) (any, error) {
			ran = true
			return "plain", nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "plain", result)
	assert.True(t, ran)
}

func TestCoordinatorEnlistsParticipant(t *testing.T) {
	manager, store, _ := newTestManager(t)
	coordinator := NewResourceCoordinator(manager, nil)

	ctx := NewCallScope(context.Background())
	tx, err := manager.Begin(ctx)
	require.NoError(t, err)

	args := &orderArgs{SKU: "a-1"}
	_, err = coordinator.Execute(ctx, Compensable{Resource: "inventory"}, args,
		func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	require.Len(t, tx.Participants, 1)
	p := tx.Participants[0]
	assert.Equal(t, tx.Xid.GlobalID, p.Xid.GlobalID,
		"participant branch shares the global identifier")
	assert.NotEqual(t, tx.Xid.BranchID, p.Xid.BranchID)
	assert.Equal(t, "inventory", p.ConfirmInvocation.Resource)
	assert.Equal(t, MethodConfirm, p.ConfirmInvocation.Method)
	assert.Equal(t, MethodCancel, p.CancelInvocation.Method)
	assert.Equal(t, DefaultEditorName, p.ContextEditorName)

	// The captured arguments carry both the business fields and the
	// synthesized context, so replays deserialize to the try's view.
	var captured orderArgs
	require.NoError(t, json.Unmarshal(p.ConfirmInvocation.Args, &captured))
	assert.Equal(t, "a-1", captured.SKU)
	require.NotNil(t, captured.Context)
	assert.Equal(t, p.Xid, captured.Context.Xid)
	assert.Equal(t, Trying, captured.Context.Status)

	// Enlisting persisted the participant.
	found, err := store.FindByXid(ctx, tx.Xid)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Participants, 1)
}

func TestCoordinatorKeepsExistingContext(t *testing.T) {
	manager, _, _ := newTestManager(t)
	coordinator := NewResourceCoordinator(manager, nil)

	ctx := NewCallScope(context.Background())
	tx, err := manager.Begin(ctx)
	require.NoError(t, err)

	preset := &TransactionContext{Xid: NewBranchXid(tx.Xid.GlobalID), Status: Trying}
	args := &orderArgs{SKU: "a-1"}
	args.SetTransactionContext(preset)

	_, err = coordinator.Execute(ctx, Compensable{Resource: "inventory"}, args,
		func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	assert.Same(t, preset, args.Context, "an already-attached context is not replaced")
}

func TestCoordinatorEnlistSkippedOutsideTrying(t *testing.T) {
	manager, _, _ := newTestManager(t)
	coordinator := NewResourceCoordinator(manager, nil)

	ctx := NewCallScope(context.Background())
	tx, err := manager.Begin(ctx)
	require.NoError(t, err)
	tx.ChangeStatus(Confirming)

	_, err = coordinator.Execute(ctx, Compensable{Resource: "inventory"},
		&orderArgs{SKU: "a-1"},
		func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Empty(t, tx.Participants, "confirm-phase calls are not enlisted again")
}

func TestCoordinatorRequiresResourceName(t *testing.T) {
	manager, _, _ := newTestManager(t)
	coordinator := NewResourceCoordinator(manager, nil)

	ctx := NewCallScope(context.Background())
	_, err := manager.Begin(ctx)
	require.NoError(t, err)

	_, err = coordinator.Execute(ctx, Compensable{},
		&orderArgs{SKU: "a-1"},
		func(ctx context.Context) (any, error) { return nil, nil })
	var sysErr *SystemError
	require.ErrorAs(t, err, &sysErr)
}
