package tcc

import "github.com/google/uuid"

// Xid identifies a transaction. A branch transaction shares the GlobalID of
// its root and carries its own BranchID. Xid is comparable so it can be used
// as a map and cache key.
type Xid struct {
	GlobalID string `json:"global_id"`
	BranchID string `json:"branch_id"`
}

// NewXid generates a fresh root transaction identifier.
func NewXid() Xid {
	return Xid{
		GlobalID: uuid.NewString(),
		BranchID: uuid.NewString(),
	}
}

// NewXidWithIdentity builds an identifier from caller-supplied uniqueness
// material instead of a generated global id. The branch qualifier is still
// generated.
func NewXidWithIdentity(identity string) Xid {
	return Xid{
		GlobalID: identity,
		BranchID: uuid.NewString(),
	}
}

// NewBranchXid derives a participant identifier sharing the given global
// transaction id with a fresh branch qualifier.
func NewBranchXid(globalID string) Xid {
	return Xid{
		GlobalID: globalID,
		BranchID: uuid.NewString(),
	}
}

// IsZero reports whether the xid is unset.
func (x Xid) IsZero() bool {
	return x.GlobalID == "" && x.BranchID == ""
}

// String implements the fmt.Stringer interface for Xid.
func (x Xid) String() string {
	return x.GlobalID + ":" + x.BranchID
}
