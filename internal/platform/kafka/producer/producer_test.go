package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitBrokers(""))
}

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: " , "}, nil)
	require.Error(t, err)
}

func TestToRecord(t *testing.T) {
	rec := ToRecord(&Message{
		Topic:   "medfayda.audit",
		Key:     []byte("doctor-1"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"action": "view_record"},
	})
	assert.Equal(t, "medfayda.audit", rec.Topic)
	assert.Equal(t, []byte("doctor-1"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "action", rec.Headers[0].Key)
	assert.Equal(t, []byte("view_record"), rec.Headers[0].Value)
}

func TestProducer_ClosedRejectsWrites(t *testing.T) {
	p, err := New(DefaultConfig("127.0.0.1:1"), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Produce(context.Background(), &Message{Topic: "t"}), ErrClosed)
	assert.ErrorIs(t, p.Ping(context.Background()), ErrClosed)
}
