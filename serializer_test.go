package tcc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransaction() *Transaction {
	tx := NewTransaction()
	tx.Attachments["tenant"] = "acme"
	tx.Attachments["attempt"] = float64(2)
	tx.EnlistParticipant(NewParticipant(
		NewBranchXid(tx.Xid.GlobalID),
		InvocationContext{Resource: "payments", Method: MethodConfirm, Args: json.RawMessage(`{"amount":10}`)},
		InvocationContext{Resource: "payments", Method: MethodCancel, Args: json.RawMessage(`{"amount":10}`)},
		DefaultEditorName,
	))
	tx.EnlistParticipant(NewParticipant(
		NewBranchXid(tx.Xid.GlobalID),
		InvocationContext{Resource: "inventory", Method: MethodConfirm, Args: json.RawMessage(`{"sku":"a"}`)},
		InvocationContext{Resource: "inventory", Method: MethodCancel, Args: json.RawMessage(`{"sku":"a"}`)},
		DefaultEditorName,
	))
	return tx
}

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := NewJSONSerializer()
	tx := sampleTransaction()

	data, err := s.Serialize(tx)
	require.NoError(t, err)

	got, err := s.Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, tx.Xid, got.Xid)
	assert.Equal(t, tx.Status, got.Status)
	assert.Equal(t, tx.Type, got.Type)
	assert.Equal(t, tx.RetryCount, got.RetryCount)
	assert.Equal(t, tx.Version, got.Version)
	assert.True(t, tx.CreateTime.Equal(got.CreateTime))
	assert.True(t, tx.LastUpdateTime.Equal(got.LastUpdateTime))
	assert.Equal(t, tx.Attachments, got.Attachments)

	require.Len(t, got.Participants, 2)
	for i, p := range got.Participants {
		assert.Equal(t, tx.Participants[i].Xid, p.Xid)
		assert.Equal(t, tx.Participants[i].ConfirmInvocation, p.ConfirmInvocation)
		assert.Equal(t, tx.Participants[i].CancelInvocation, p.CancelInvocation)
		assert.Equal(t, tx.Participants[i].ContextEditorName, p.ContextEditorName)
	}
}

func TestJSONSerializerStableAcrossRoundTrips(t *testing.T) {
	s := NewJSONSerializer()
	tx := sampleTransaction()

	first, err := s.Serialize(tx)
	require.NoError(t, err)

	decoded, err := s.Deserialize(first)
	require.NoError(t, err)

	second, err := s.Serialize(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second),
		"serialize(deserialize(serialize(tx))) must reproduce the serialized form")
}

func TestJSONSerializerCloneIsIndependent(t *testing.T) {
	s := NewJSONSerializer()
	tx := sampleTransaction()

	clone, err := s.Clone(tx)
	require.NoError(t, err)

	clone.ChangeStatus(Cancelling)
	clone.Attachments["tenant"] = "other"
	clone.Participants[0].ConfirmInvocation.Resource = "mutated"

	assert.Equal(t, Trying, tx.Status)
	assert.Equal(t, "acme", tx.Attachments["tenant"])
	assert.Equal(t, "payments", tx.Participants[0].ConfirmInvocation.Resource)
}

func TestStatusJSONRoundTrip(t *testing.T) {
	for _, status := range []Status{Trying, Confirming, Cancelling} {
		data, err := json.Marshal(status)
		require.NoError(t, err)

		var got Status
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, status, got)
	}

	var invalid Status
	assert.Error(t, json.Unmarshal([]byte(`"DONE"`), &invalid))
}

func TestTransactionTypeJSONRoundTrip(t *testing.T) {
	for _, typ := range []TransactionType{Root, Branch} {
		data, err := json.Marshal(typ)
		require.NoError(t, err)

		var got TransactionType
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, typ, got)
	}
}
