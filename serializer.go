package tcc

import (
	"encoding/json"
	"fmt"
)

// Serializer converts transactions to and from an opaque byte representation
// with round-trip fidelity for the full data model, including participants
// and the open attachment mapping. Store backends that persist transactions
// as blobs depend on this contract.
type Serializer interface {
	Serialize(tx *Transaction) ([]byte, error)
	Deserialize(data []byte) (*Transaction, error)
	Clone(tx *Transaction) (*Transaction, error)
}

// JSONSerializer is the default Serializer. Attachment values survive as
// their generic JSON forms (numbers become float64), which is stable across
// repeated round trips.
type JSONSerializer struct{}

// NewJSONSerializer creates a JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize implements the Serializer interface.
func (s *JSONSerializer) Serialize(tx *Transaction) ([]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction %s: %w", tx.Xid, err)
	}
	return data, nil
}

// Deserialize implements the Serializer interface.
func (s *JSONSerializer) Deserialize(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return &tx, nil
}

// Clone implements the Serializer interface by deep-copying through the
// serialized form.
func (s *JSONSerializer) Clone(tx *Transaction) (*Transaction, error) {
	data, err := s.Serialize(tx)
	if err != nil {
		return nil, err
	}
	return s.Deserialize(data)
}
