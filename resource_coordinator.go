package tcc

import (
	"context"
	"encoding/json"
	"fmt"
)

// ResourceCoordinator wraps calls to compensable resources made inside a
// try. When the current transaction is in TRYING it synthesizes and attaches
// a transaction context to the outgoing arguments if none is present,
// captures replayable confirm and cancel invocation descriptors for the same
// arguments, and enlists the resulting participant on the current
// transaction. Outside a TRYING transaction it is a pass-through.
type ResourceCoordinator struct {
	manager *TransactionManager
	editors *EditorRegistry
}

// NewResourceCoordinator creates a coordinator bound to a manager and an
// editor registry. A nil editors registry gets the default editor only.
func NewResourceCoordinator(manager *TransactionManager, editors *EditorRegistry) *ResourceCoordinator {
	if editors == nil {
		editors = NewEditorRegistry()
	}
	return &ResourceCoordinator{
		manager: manager,
		editors: editors,
	}
}

// Execute wraps one resource call. The participant is enlisted before the
// call proceeds, so a later confirm or cancel covers the try even when the
// try itself fails midway.
func (rc *ResourceCoordinator) Execute(ctx context.Context, comp Compensable, args any, proceed Proceed) (any, error) {
	tx := rc.manager.CurrentTransaction(ctx)
	if tx != nil && tx.Status == Trying {
		if err := rc.enlist(ctx, tx, comp, args); err != nil {
			return nil, err
		}
	}
	return proceed(ctx)
}

func (rc *ResourceCoordinator) enlist(ctx context.Context, tx *Transaction, comp Compensable, args any) error {
	if comp.Resource == "" {
		return NewSystemError("compensable call has no resource name to enlist")
	}

	editor, err := rc.editors.Get(comp.ContextEditor)
	if err != nil {
		return err
	}

	branchXid := NewBranchXid(tx.Xid.GlobalID)
	if _, ok := editor.Get(args); !ok {
		txc := &TransactionContext{Xid: branchXid, Status: Trying}
		if err := editor.Set(args, txc); err != nil {
			return err
		}
	}

	argsData, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to capture arguments for resource %q: %w", comp.Resource, err)
	}

	editorName := comp.ContextEditor
	if editorName == "" {
		editorName = DefaultEditorName
	}

	participant := NewParticipant(
		branchXid,
		InvocationContext{Resource: comp.Resource, Method: MethodConfirm, Args: argsData},
		InvocationContext{Resource: comp.Resource, Method: MethodCancel, Args: argsData},
		editorName,
	)
	return rc.manager.EnlistParticipant(ctx, participant)
}
