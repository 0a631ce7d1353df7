package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/loanledger/internal/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestPublishEncodesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}
	e := events.New(events.LoanEMIPaid, "loan-1", map[string]int{"installment": 2}, time.Now())

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "loan-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, events.LoanEMIPaid, string(msg.Headers[0].Value))

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, events.LoanEMIPaid, decoded.Type)
	assert.Equal(t, 2, decoded.Data["installment"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisherConfiguresWriter(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "loan-events")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "loan-events", w.Topic)
}
