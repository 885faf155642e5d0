package tcc

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected coordination conditions. Callers should test
// for them with errors.Is so wrapped causes are matched through the chain.
var (
	// ErrConcurrentTransaction is returned by TransactionStore.Create when a
	// transaction with the same xid already exists.
	ErrConcurrentTransaction = errors.New("transaction xid duplicated")

	// ErrOptimisticLock is returned by TransactionStore.Update when the
	// stored version does not match the version being updated, meaning
	// another coordinator instance modified the record first.
	ErrOptimisticLock = errors.New("optimistic lock version mismatch")

	// ErrNoExistedTransaction is returned by
	// TransactionManager.PropagationExistBegin when no transaction matches
	// the propagated xid. Provider-side confirm/cancel converts it into a
	// silent success (null confirm / null cancel).
	ErrNoExistedTransaction = errors.New("transaction does not exist")

	// ErrAsyncPoolSaturated is the cause recorded when an asynchronous
	// confirm or cancel could not be submitted to the worker pool.
	ErrAsyncPoolSaturated = errors.New("async worker pool saturated")
)

// ConfirmingError wraps any failure that occurs while confirming a
// transaction's participants, or while submitting the confirm to the async
// worker pool. The transaction record is left in CONFIRMING status for the
// recovery job to retry.
type ConfirmingError struct {
	Err error
}

func (e *ConfirmingError) Error() string {
	return fmt.Sprintf("confirming failed, recovery job will retry: %v", e.Err)
}

func (e *ConfirmingError) Unwrap() error {
	return e.Err
}

// CancellingError wraps any failure that occurs while cancelling a
// transaction's participants, or while submitting the cancel to the async
// worker pool. The transaction record is left in CANCELLING status for the
// recovery job to retry.
type CancellingError struct {
	Err error
}

func (e *CancellingError) Error() string {
	return fmt.Sprintf("cancelling failed, recovery job will retry: %v", e.Err)
}

func (e *CancellingError) Unwrap() error {
	return e.Err
}

// SystemError reports an illegal propagation/context combination or a misuse
// of the call-scope API. It is always fatal to the current call.
type SystemError struct {
	Msg string
}

func (e *SystemError) Error() string {
	return e.Msg
}

// NewSystemError creates a SystemError with the given message.
func NewSystemError(format string, args ...any) *SystemError {
	return &SystemError{Msg: fmt.Sprintf(format, args...)}
}

// IllegitimateStateError reports an internal contract violation, such as
// popping a transaction that is not the current top of the call scope. It
// indicates a bug in call-path management.
type IllegitimateStateError struct {
	Msg string
}

func (e *IllegitimateStateError) Error() string {
	return e.Msg
}
