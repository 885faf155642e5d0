package tcc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a transaction.
//
// The only legal transitions are TRYING -> CONFIRMING and TRYING ->
// CANCELLING; both are terminal. Completion is marked by deleting the record
// from the store, not by a further status.
type Status int

const (
	Trying Status = iota + 1
	Confirming
	Cancelling
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case Trying:
		return "TRYING"
	case Confirming:
		return "CONFIRMING"
	case Cancelling:
		return "CANCELLING"
	default:
		return fmt.Sprintf("Unknown Status: %d", s)
	}
}

// MarshalJSON implements the json.Marshaler interface for Status.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "TRYING":
		*s = Trying
	case "CONFIRMING":
		*s = Confirming
	case "CANCELLING":
		*s = Cancelling
	default:
		return fmt.Errorf("invalid Status: %s", str)
	}

	return nil
}

// TransactionType distinguishes the transaction created by the call that
// initiates a unit of work (Root) from one created by a remote participant
// receiving a propagated context (Branch).
type TransactionType int

const (
	Root TransactionType = iota + 1
	Branch
)

// String returns the string representation of the TransactionType.
func (t TransactionType) String() string {
	switch t {
	case Root:
		return "ROOT"
	case Branch:
		return "BRANCH"
	default:
		return fmt.Sprintf("Unknown TransactionType: %d", t)
	}
}

// MarshalJSON implements the json.Marshaler interface for TransactionType.
func (t TransactionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for TransactionType.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "ROOT":
		*t = Root
	case "BRANCH":
		*t = Branch
	default:
		return fmt.Errorf("invalid TransactionType: %s", str)
	}

	return nil
}

// Transaction is the persistent unit of work. Participants are kept in
// enlistment order and confirm/cancel are applied in that order; each
// participant's compensating actions must be idempotent, so ordering is not
// relied on for correctness.
//
// A Transaction is owned by the execution context that created it (or, for
// recovery, by the sweep that loaded it); stores hand out independent copies,
// so no internal locking is needed.
type Transaction struct {
	Xid            Xid             `json:"xid"`
	Status         Status          `json:"status"`
	Type           TransactionType `json:"transaction_type"`
	RetryCount     int             `json:"retry_count"`
	CreateTime     time.Time       `json:"create_time"`
	LastUpdateTime time.Time       `json:"last_update_time"`
	Version        int64           `json:"version"`
	Participants   []*Participant  `json:"participants"`
	Attachments    map[string]any  `json:"attachments,omitempty"`
}

// NewTransaction creates a ROOT transaction with a generated xid in TRYING
// status.
func NewTransaction() *Transaction {
	return newTransaction(NewXid(), Root)
}

// NewTransactionWithIdentity creates a ROOT transaction whose global id is
// the caller-supplied uniqueness material.
func NewTransactionWithIdentity(identity string) *Transaction {
	return newTransaction(NewXidWithIdentity(identity), Root)
}

// NewBranchTransaction creates a BRANCH transaction keyed to an inbound
// propagated context. The branch shares the xid carried by the context so
// confirm/cancel replays from the initiator find it.
func NewBranchTransaction(txc *TransactionContext) *Transaction {
	return newTransaction(txc.Xid, Branch)
}

func newTransaction(xid Xid, typ TransactionType) *Transaction {
	now := time.Now()
	return &Transaction{
		Xid:            xid,
		Status:         Trying,
		Type:           typ,
		CreateTime:     now,
		LastUpdateTime: now,
		Version:        1,
		Participants:   make([]*Participant, 0),
		Attachments:    make(map[string]any),
	}
}

// ChangeStatus moves the transaction to the given status.
func (t *Transaction) ChangeStatus(status Status) {
	t.Status = status
}

// EnlistParticipant appends a participant. Enlistment order is the order
// confirm/cancel will be applied in.
func (t *Transaction) EnlistParticipant(p *Participant) {
	t.Participants = append(t.Participants, p)
}

// AddRetryCount bumps the recovery retry counter by one.
func (t *Transaction) AddRetryCount() {
	t.RetryCount++
}

// ResetRetryCount overwrites the recovery retry counter.
func (t *Transaction) ResetRetryCount(count int) {
	t.RetryCount = count
}

// Commit applies the confirm action of every participant in enlistment
// order, resolving handlers through the given registry. It stops at the
// first failure.
func (t *Transaction) Commit(ctx context.Context, resources *ResourceRegistry) error {
	for _, p := range t.Participants {
		if err := p.Commit(ctx, resources); err != nil {
			return err
		}
	}
	return nil
}

// Rollback applies the cancel action of every participant in enlistment
// order. It stops at the first failure.
func (t *Transaction) Rollback(ctx context.Context, resources *ResourceRegistry) error {
	for _, p := range t.Participants {
		if err := p.Rollback(ctx, resources); err != nil {
			return err
		}
	}
	return nil
}
