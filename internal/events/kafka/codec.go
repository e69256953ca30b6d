package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const (
	headerAttempts = "x-delivery-attempts"
	headerError    = "x-dead-letter-error"
)

// keyed events are partitioned by their key so that events of one account keep their order.
type keyed interface {
	PartitionKey() string
}

// encodeRequest keys apply requests by account so a partition sees every
// request of an account in submission order.
func encodeRequest(topic string, req models.ApplyRequest) (kafka.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode apply request %s: %w", req.TransactionID, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(req.AccountID),
		Value: data,
	}, nil
}

func decodeRequest(m kafka.Message) (models.ApplyRequest, error) {
	var req models.ApplyRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return models.ApplyRequest{}, fmt.Errorf("decode apply request at offset %d: %w", m.Offset, err)
	}
	return req, nil
}

func encodeEvent(topic string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	m := kafka.Message{Topic: topic, Value: data}
	if k, ok := event.(keyed); ok {
		m.Key = []byte(k.PartitionKey())
	}
	return m, nil
}

// deadLetterMessage copies m to topic, recording why and after how many attempts it was given up.
func deadLetterMessage(topic string, m kafka.Message, attempts int, cause error) kafka.Message {
	headers := append([]kafka.Header(nil), m.Headers...)
	headers = append(headers,
		kafka.Header{Key: headerAttempts, Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: headerError, Value: []byte(cause.Error())},
	)
	return kafka.Message{
		Topic:   topic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	}
}
