package tcc

import (
	"context"

	"github.com/alitto/pond"
	"go.uber.org/zap"
)

// TransactionManager owns transaction creation, propagation, participant
// enlistment, and commit/rollback orchestration. Active transactions are
// bound to the call path through a call scope (see NewCallScope); the most
// recently begun transaction is the current one.
type TransactionManager struct {
	store     TransactionStore
	resources *ResourceRegistry
	pool      *pond.WorkerPool
	logger    *zap.Logger
}

// NewTransactionManager creates a manager over the given store and resource
// registry. A nil config uses DefaultRecoverConfig for the async pool
// sizing; a nil logger discards logs.
func NewTransactionManager(store TransactionStore, resources *ResourceRegistry, config *RecoverConfig, logger *zap.Logger) *TransactionManager {
	if config == nil {
		config = DefaultRecoverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := pond.New(
		config.AsyncPoolMaxSize,
		config.AsyncPoolQueueSize,
		pond.MinWorkers(config.AsyncPoolCoreSize),
	)

	return &TransactionManager{
		store:     store,
		resources: resources,
		pool:      pool,
		logger:    logger,
	}
}

// Close stops the async worker pool, waiting for submitted confirm/cancel
// work to drain.
func (m *TransactionManager) Close() {
	m.pool.StopAndWait()
}

// Begin creates a ROOT transaction, persists it, and pushes it onto the
// current call scope.
func (m *TransactionManager) Begin(ctx context.Context) (*Transaction, error) {
	return m.register(ctx, NewTransaction())
}

// BeginWithIdentity creates a ROOT transaction keyed by caller-supplied
// uniqueness material instead of a generated global id.
func (m *TransactionManager) BeginWithIdentity(ctx context.Context, identity string) (*Transaction, error) {
	return m.register(ctx, NewTransactionWithIdentity(identity))
}

// PropagationNewBegin creates a BRANCH transaction keyed to an inbound
// propagated context. Used when a remote participant first receives a try
// call.
func (m *TransactionManager) PropagationNewBegin(ctx context.Context, txc *TransactionContext) (*Transaction, error) {
	return m.register(ctx, NewBranchTransaction(txc))
}

// PropagationExistBegin looks up the transaction named by an inbound
// context, overwrites its status from the context, and pushes it onto the
// call scope. It fails with ErrNoExistedTransaction when the record is
// absent, which callers convert into a null confirm/cancel.
func (m *TransactionManager) PropagationExistBegin(ctx context.Context, txc *TransactionContext) (*Transaction, error) {
	tx, err := m.store.FindByXid(ctx, txc.Xid)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNoExistedTransaction
	}

	tx.ChangeStatus(txc.Status)

	scope := scopeFrom(ctx)
	if scope == nil {
		return nil, NewSystemError("no call scope bound to context; wrap it with tcc.NewCallScope")
	}
	scope.push(tx)
	return tx, nil
}

func (m *TransactionManager) register(ctx context.Context, tx *Transaction) (*Transaction, error) {
	scope := scopeFrom(ctx)
	if scope == nil {
		return nil, NewSystemError("no call scope bound to context; wrap it with tcc.NewCallScope")
	}

	if _, err := m.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	scope.push(tx)
	return tx, nil
}

// CurrentTransaction returns the most recently begun transaction on the
// call scope, or nil.
func (m *TransactionManager) CurrentTransaction(ctx context.Context) *Transaction {
	scope := scopeFrom(ctx)
	if scope == nil {
		return nil
	}
	return scope.peek()
}

// Commit moves the current transaction to CONFIRMING, persists the status
// change, and applies every participant's confirm. With async, the apply
// loop is handed to the worker pool once the status is durable: a rejected
// submission surfaces synchronously as a ConfirmingError, while a failure
// inside the asynchronous work is only logged and left for recovery.
func (m *TransactionManager) Commit(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("commit: no active transaction on the call scope")
	}

	tx.ChangeStatus(Confirming)
	if _, err := m.store.Update(ctx, tx); err != nil {
		return &ConfirmingError{Err: err}
	}

	if async {
		detached := context.WithoutCancel(ctx)
		if !m.pool.TrySubmit(func() {
			// Errors are logged inside; the synchronous caller has already
			// returned and recovery is the backstop.
			_ = m.confirmTransaction(detached, tx)
		}) {
			m.logger.Warn("async confirm submit rejected, recovery job will confirm later",
				zap.String("xid", tx.Xid.String()))
			return &ConfirmingError{Err: ErrAsyncPoolSaturated}
		}
		return nil
	}

	return m.confirmTransaction(ctx, tx)
}

// Rollback moves the current transaction to CANCELLING, persists the status
// change, and applies every participant's cancel. Async semantics mirror
// Commit.
func (m *TransactionManager) Rollback(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("rollback: no active transaction on the call scope")
	}

	tx.ChangeStatus(Cancelling)
	if _, err := m.store.Update(ctx, tx); err != nil {
		return &CancellingError{Err: err}
	}

	if async {
		detached := context.WithoutCancel(ctx)
		if !m.pool.TrySubmit(func() {
			_ = m.rollbackTransaction(detached, tx)
		}) {
			m.logger.Warn("async cancel submit rejected, recovery job will cancel later",
				zap.String("xid", tx.Xid.String()))
			return &CancellingError{Err: ErrAsyncPoolSaturated}
		}
		return nil
	}

	return m.rollbackTransaction(ctx, tx)
}

// EnlistParticipant appends a participant to the current transaction and
// persists the update under the optimistic lock.
func (m *TransactionManager) EnlistParticipant(ctx context.Context, p *Participant) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("enlist: no active transaction on the call scope")
	}

	tx.EnlistParticipant(p)
	_, err := m.store.Update(ctx, tx)
	return err
}

// CleanAfterCompletion pops the transaction off the call scope. Popping
// anything but the top frame is a contract violation and returns an
// IllegitimateStateError; it means call-path cleanup raced a nested
// transaction.
func (m *TransactionManager) CleanAfterCompletion(ctx context.Context, tx *Transaction) error {
	if tx == nil {
		return nil
	}

	scope := scopeFrom(ctx)
	if scope == nil || !scope.active() {
		return nil
	}
	if !scope.popIfTop(tx) {
		return &IllegitimateStateError{
			Msg: "illegal transaction when clean after completion: not the top of the call scope",
		}
	}
	return nil
}

func (m *TransactionManager) confirmTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Commit(ctx, m.resources); err != nil {
		m.logger.Warn("transaction confirm failed, recovery job will confirm later",
			zap.String("xid", tx.Xid.String()),
			zap.Error(err))
		return &ConfirmingError{Err: err}
	}
	if _, err := m.store.Delete(ctx, tx); err != nil {
		m.logger.Warn("confirmed transaction delete failed, recovery job will finish it",
			zap.String("xid", tx.Xid.String()),
			zap.Error(err))
		return &ConfirmingError{Err: err}
	}
	return nil
}

func (m *TransactionManager) rollbackTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Rollback(ctx, m.resources); err != nil {
		m.logger.Warn("transaction cancel failed, recovery job will cancel later",
			zap.String("xid", tx.Xid.String()),
			zap.Error(err))
		return &CancellingError{Err: err}
	}
	if _, err := m.store.Delete(ctx, tx); err != nil {
		m.logger.Warn("cancelled transaction delete failed, recovery job will finish it",
			zap.String("xid", tx.Xid.String()),
			zap.Error(err))
		return &CancellingError{Err: err}
	}
	return nil
}
