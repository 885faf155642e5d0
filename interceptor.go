package tcc

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Propagation declares how a compensable call relates to an already-active
// transaction, mirroring the usual transaction propagation vocabulary.
type Propagation int

const (
	// Required joins the active transaction, or starts one when the call
	// initiates the unit of work.
	Required Propagation = iota
	// Supports runs inside the active transaction if there is one, without
	// transaction semantics of its own.
	Supports
	// Mandatory requires an active transaction or an inbound context;
	// neither being present is an error.
	Mandatory
	// RequiresNew always starts a fresh ROOT transaction, stacking it on
	// top of any active one.
	RequiresNew
)

// String returns the string representation of the Propagation.
func (p Propagation) String() string {
	switch p {
	case Required:
		return "REQUIRED"
	case Supports:
		return "SUPPORTS"
	case Mandatory:
		return "MANDATORY"
	case RequiresNew:
		return "REQUIRES_NEW"
	default:
		return "UNKNOWN"
	}
}

// Role is the part a call plays in a transaction, computed from its declared
// propagation, whether a transaction is active on the call scope, and
// whether an inbound context was supplied.
type Role int

const (
	// RoleNormal is a pass-through: no transaction semantics applied at
	// this boundary.
	RoleNormal Role = iota
	// RoleRoot initiates the unit of work.
	RoleRoot
	// RoleProvider is a remote participant receiving a propagated context.
	RoleProvider
)

// String returns the string representation of the Role.
func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "ROOT"
	case RoleProvider:
		return "PROVIDER"
	default:
		return "NORMAL"
	}
}

// methodRole computes the call's role.
func methodRole(p Propagation, active, hasContext bool) Role {
	switch {
	case p == RequiresNew:
		return RoleRoot
	case p == Required && !active && !hasContext:
		return RoleRoot
	case (p == Required || p == Mandatory) && !active && hasContext:
		return RoleProvider
	default:
		return RoleNormal
	}
}

// Compensable declares the transactional behavior of one call site. It is
// the explicit, capability-based replacement for an annotation: the caller
// hands it to the interceptor together with the call's arguments.
type Compensable struct {
	// Propagation is the call's declared propagation requirement.
	Propagation Propagation

	// Resource names the registered Resource whose confirm/cancel pair
	// compensates this call. Required for enlistment.
	Resource string

	// UniqueIdentity, when set, keys the ROOT transaction instead of a
	// generated global id.
	UniqueIdentity string

	// AsyncConfirm and AsyncCancel hand the confirm/cancel apply loop to
	// the background worker pool.
	AsyncConfirm bool
	AsyncCancel  bool

	// DelayCancel supplements the interceptor-wide delay-cancel
	// classification for this call.
	DelayCancel DelayCancelPredicate

	// ContextEditor names the editor used to carry the transaction context
	// on this call's arguments. Empty selects the default editor.
	ContextEditor string
}

// Proceed invokes the wrapped business logic.
type Proceed func(ctx context.Context) (any, error)

// CompensableInterceptor is the decision procedure run at each compensable
// call boundary. It classifies the call's role and drives the
// try/confirm/cancel sequence for initiators and the confirm/cancel replay
// for providers.
type CompensableInterceptor struct {
	manager     *TransactionManager
	editors     *EditorRegistry
	delayCancel DelayCancelPredicate
	logger      *zap.Logger
}

// NewCompensableInterceptor creates an interceptor bound to a manager and an
// editor registry. A nil editors registry gets the default editor only; a
// nil delayCancel uses DefaultDelayCancel; a nil logger discards logs.
func NewCompensableInterceptor(manager *TransactionManager, editors *EditorRegistry, delayCancel DelayCancelPredicate, logger *zap.Logger) *CompensableInterceptor {
	if editors == nil {
		editors = NewEditorRegistry()
	}
	if delayCancel == nil {
		delayCancel = DefaultDelayCancel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CompensableInterceptor{
		manager:     manager,
		editors:     editors,
		delayCancel: delayCancel,
		logger:      logger,
	}
}

// Execute wraps one compensable call. args carries the call's arguments (and
// any inbound transaction context readable by the configured editor);
// proceed runs the original business logic.
//
// On provider-side confirm/cancel replays the business logic is not invoked
// and the returned value is nil; use InvokeCompensable for a typed zero
// value.
func (i *CompensableInterceptor) Execute(ctx context.Context, comp Compensable, args any, proceed Proceed) (any, error) {
	ctx = EnsureCallScope(ctx)

	editor, err := i.editors.Get(comp.ContextEditor)
	if err != nil {
		return nil, err
	}
	txc, hasContext := editor.Get(args)
	active := i.manager.CurrentTransaction(ctx) != nil

	if comp.Propagation == Mandatory && !active && !hasContext {
		return nil, NewSystemError("no active compensable transaction while propagation is mandatory")
	}

	switch methodRole(comp.Propagation, active, hasContext) {
	case RoleRoot:
		return i.rootProceed(ctx, comp, proceed)
	case RoleProvider:
		return i.providerProceed(ctx, comp, txc, proceed)
	default:
		return proceed(ctx)
	}
}

// rootProceed drives the call-initiator flow: begin, try, then confirm on
// success or cancel on failure. The original try failure is always re-raised
// regardless of the rollback outcome, and the transaction is popped off the
// call scope on every exit path.
func (i *CompensableInterceptor) rootProceed(ctx context.Context, comp Compensable, proceed Proceed) (result any, err error) {
	var tx *Transaction
	if comp.UniqueIdentity != "" {
		tx, err = i.manager.BeginWithIdentity(ctx, comp.UniqueIdentity)
	} else {
		tx, err = i.manager.Begin(ctx)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cleanErr := i.manager.CleanAfterCompletion(ctx, tx); cleanErr != nil && err == nil {
			err = cleanErr
		}
	}()

	result, tryErr := proceed(ctx)
	if tryErr != nil {
		if i.isDelayCancel(comp, tryErr) {
			// Left in TRYING for the recovery job: cancelling now could
			// compensate a remote try that is still executing.
			i.logger.Warn("compensable transaction trying failed with delay-cancel classification",
				zap.String("xid", tx.Xid.String()),
				zap.Error(tryErr))
		} else {
			i.logger.Warn("compensable transaction trying failed",
				zap.String("xid", tx.Xid.String()),
				zap.Error(tryErr))
			if rbErr := i.manager.Rollback(ctx, comp.AsyncCancel); rbErr != nil {
				i.logger.Warn("rollback after failed trying did not complete, recovery job will cancel later",
					zap.String("xid", tx.Xid.String()),
					zap.Error(rbErr))
			}
		}
		return nil, tryErr
	}

	if commitErr := i.manager.Commit(ctx, comp.AsyncConfirm); commitErr != nil {
		return nil, commitErr
	}
	return result, nil
}

// providerProceed drives the remote-participant flow, dispatching on the
// inbound context's status. For CONFIRMING and CANCELLING the wrapped
// business method is not invoked; only the recorded confirm/cancel
// counterpart is applied and the call yields the zero value.
func (i *CompensableInterceptor) providerProceed(ctx context.Context, comp Compensable, txc *TransactionContext, proceed Proceed) (any, error) {
	switch txc.Status {
	case Trying:
		tx, err := i.manager.PropagationNewBegin(ctx, txc)
		if err != nil {
			return nil, err
		}
		return i.finishProvider(ctx, tx, proceed)

	case Confirming:
		tx, err := i.manager.PropagationExistBegin(ctx, txc)
		if err != nil {
			if errors.Is(err, ErrNoExistedTransaction) {
				// Null confirm: the transaction was already completed.
				return nil, nil
			}
			return nil, err
		}
		return i.finishProvider(ctx, tx, func(ctx context.Context) (any, error) {
			return nil, i.manager.Commit(ctx, comp.AsyncConfirm)
		})

	case Cancelling:
		tx, err := i.manager.PropagationExistBegin(ctx, txc)
		if err != nil {
			if errors.Is(err, ErrNoExistedTransaction) {
				// Null cancel: compensating a try that never happened, or
				// that already finished, converges as a no-op.
				return nil, nil
			}
			return nil, err
		}
		return i.finishProvider(ctx, tx, func(ctx context.Context) (any, error) {
			return nil, i.manager.Rollback(ctx, comp.AsyncCancel)
		})

	default:
		return nil, NewSystemError("illegal inbound transaction status %v", txc.Status)
	}
}

// finishProvider runs fn and pops the transaction off the call scope on the
// way out, merging a cleanup violation into the result when fn succeeded.
func (i *CompensableInterceptor) finishProvider(ctx context.Context, tx *Transaction, fn Proceed) (result any, err error) {
	defer func() {
		if cleanErr := i.manager.CleanAfterCompletion(ctx, tx); cleanErr != nil && err == nil {
			err = cleanErr
		}
	}()
	return fn(ctx)
}

func (i *CompensableInterceptor) isDelayCancel(comp Compensable, err error) bool {
	if i.delayCancel != nil && i.delayCancel(err) {
		return true
	}
	return comp.DelayCancel != nil && comp.DelayCancel(err)
}

// InvokeCompensable wraps Execute with a typed result: provider-side
// confirm/cancel replays yield R's zero value, as does any error.
func InvokeCompensable[R any](ctx context.Context, i *CompensableInterceptor, comp Compensable, args any, proceed func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	ret, err := i.Execute(ctx, comp, args, func(ctx context.Context) (any, error) {
		return proceed(ctx)
	})
	if err != nil || ret == nil {
		return zero, err
	}
	typed, ok := ret.(R)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
