package tcc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Invocation method names recorded in replayable call descriptors.
const (
	MethodConfirm = "Confirm"
	MethodCancel  = "Cancel"
)

// InvocationContext is a fully specified, replayable call descriptor: the
// registered resource it targets, the method to apply, and the JSON-encoded
// arguments of the original try call. It is sufficient to invoke the
// confirming or cancelling action at any later time, any number of times;
// idempotence is the contract of the resource's business logic, not enforced
// here.
type InvocationContext struct {
	Resource string          `json:"resource"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// Invoke resolves the target resource in the registry and applies the
// recorded method with the recorded arguments.
func (ic *InvocationContext) Invoke(ctx context.Context, resources *ResourceRegistry, txc *TransactionContext) error {
	resource, err := resources.Get(ic.Resource)
	if err != nil {
		return fmt.Errorf("invocation target %q: %w", ic.Resource, err)
	}

	switch ic.Method {
	case MethodConfirm:
		return resource.Confirm(ctx, txc, ic.Args)
	case MethodCancel:
		return resource.Cancel(ctx, txc, ic.Args)
	default:
		return fmt.Errorf("invocation of %q: unknown method %q", ic.Resource, ic.Method)
	}
}

// Participant is one resource's registered pair of compensating actions
// within a transaction. Its xid shares the global id of the transaction it
// belongs to and carries its own branch qualifier.
type Participant struct {
	Xid               Xid               `json:"xid"`
	ConfirmInvocation InvocationContext `json:"confirm_invocation"`
	CancelInvocation  InvocationContext `json:"cancel_invocation"`

	// ContextEditorName identifies how the propagated transaction context
	// should be attached to remote calls made during confirm/cancel replays.
	ContextEditorName string `json:"context_editor"`
}

// NewParticipant builds a participant for the given branch xid and
// confirm/cancel descriptors.
func NewParticipant(xid Xid, confirm, cancel InvocationContext, editorName string) *Participant {
	return &Participant{
		Xid:               xid,
		ConfirmInvocation: confirm,
		CancelInvocation:  cancel,
		ContextEditorName: editorName,
	}
}

// Commit replays the confirm invocation, carrying a CONFIRMING context keyed
// to the participant's xid.
func (p *Participant) Commit(ctx context.Context, resources *ResourceRegistry) error {
	return p.ConfirmInvocation.Invoke(ctx, resources, &TransactionContext{
		Xid:    p.Xid,
		Status: Confirming,
	})
}

// Rollback replays the cancel invocation, carrying a CANCELLING context
// keyed to the participant's xid.
func (p *Participant) Rollback(ctx context.Context, resources *ResourceRegistry) error {
	return p.CancelInvocation.Invoke(ctx, resources, &TransactionContext{
		Xid:    p.Xid,
		Status: Cancelling,
	})
}
