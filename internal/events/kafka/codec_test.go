package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models/events"
)

func TestEncodeRequest_KeyedByAccount(t *testing.T) {
	req := models.ApplyRequest{
		TransactionID: "tx-1",
		AccountID:     "acc-9",
		Amount:        decimal.RequireFromString("-12.34"),
		Ticket:        "v3",
		RequestedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	m, err := encodeRequest("account-transactions", req)
	require.NoError(t, err)
	assert.Equal(t, "account-transactions", m.Topic)
	assert.Equal(t, "acc-9", string(m.Key))

	got, err := decodeRequest(m)
	require.NoError(t, err)
	assert.Equal(t, req.TransactionID, got.TransactionID)
	assert.True(t, req.Amount.Equal(got.Amount))
	assert.Equal(t, "v3", got.Ticket)
	assert.True(t, req.RequestedAt.Equal(got.RequestedAt))
}

func TestDecodeRequest_RejectsGarbage(t *testing.T) {
	_, err := decodeRequest(kafka.Message{Offset: 7, Value: []byte("not json")})
	assert.ErrorContains(t, err, "offset 7")
}

func TestEncodeEvent_UsesPartitionKey(t *testing.T) {
	m, err := encodeEvent("client-response", events.AccountCallback{AccountID: "acc-1", TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", string(m.Key))
	assert.Contains(t, string(m.Value), `"transaction_id":"tx-1"`)

	plain, err := encodeEvent("client-response", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Nil(t, plain.Key)
}

func TestDeadLetterMessage_RecordsCause(t *testing.T) {
	src := kafka.Message{
		Topic:   "account-transactions",
		Key:     []byte("acc-1"),
		Value:   []byte(`{}`),
		Headers: []kafka.Header{{Key: "trace", Value: []byte("abc")}},
	}

	dl := deadLetterMessage("account-transactions-dlq", src, 5, errors.New("store down"))
	assert.Equal(t, "account-transactions-dlq", dl.Topic)
	assert.Equal(t, src.Key, dl.Key)
	assert.Equal(t, src.Value, dl.Value)

	headers := map[string]string{}
	for _, h := range dl.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "abc", headers["trace"])
	assert.Equal(t, "5", headers[headerAttempts])
	assert.Equal(t, "store down", headers[headerError])
	assert.Len(t, src.Headers, 1, "source headers untouched")
}
