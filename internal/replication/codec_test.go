package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := model.MutationEvent{
		Table: model.TableUsers,
		Op:    model.OpAdd,
		Row:   &model.User{ID: 1, Username: "alice", Version: 1},
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, model.TableUsers, decoded.Table)
	assert.Equal(t, model.OpAdd, decoded.Op)

	row, ok := decoded.Row.(*model.User)
	require.True(t, ok)
	assert.Equal(t, "alice", row.Username)
	assert.EqualValues(t, 1, row.ID)
}

func TestDecodeMessageTable(t *testing.T) {
	original := model.MutationEvent{
		Table: model.TableMessages,
		Op:    model.OpAdd,
		Row:   &model.Message{ID: 42, SenderID: 1, ReceiverID: 2, Content: "hi"},
	}
	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	row, ok := decoded.Row.(*model.Message)
	require.True(t, ok)
	assert.Equal(t, "hi", row.Content)
}

func TestDecodeRejectsUnknownTable(t *testing.T) {
	_, err := Decode([]byte(`{"table":"bogus","op":"add","row":{}}`))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownColumn(t *testing.T) {
	_, err := Decode([]byte(`{"table":"users","op":"add","row":{"id":1,"username":"alice","evil_column":true}}`))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownEnvelopeField(t *testing.T) {
	_, err := Decode([]byte(`{"table":"users","op":"add","row":{},"extra":1}`))
	assert.Error(t, err)
}
