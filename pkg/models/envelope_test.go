package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_IsDelayed(t *testing.T) {
	assert.False(t, Envelope{}.IsDelayed())
	assert.True(t, Envelope{DelayUntil: "2026-09-01 10:00:00"}.IsDelayed())
}

func TestEnvelope_DueAt(t *testing.T) {
	env := Envelope{DelayUntil: "2026-09-01 10:30:00"}
	due := env.DueAt()
	require.False(t, due.IsZero())
	assert.Equal(t, 2026, due.Year())
	assert.Equal(t, time.September, due.Month())
	assert.Equal(t, 30, due.Minute())

	assert.True(t, Envelope{}.DueAt().IsZero())
	assert.True(t, Envelope{DelayUntil: "tomorrow-ish"}.DueAt().IsZero())
}

func TestEnvelope_DataMaps(t *testing.T) {
	single := Envelope{Data: map[string]interface{}{"id": "1"}}
	require.Len(t, single.DataMaps(), 1)
	assert.Equal(t, "1", single.DataMaps()[0]["id"])

	list := Envelope{Data: []interface{}{
		map[string]interface{}{"id": "1"},
		map[string]interface{}{"id": "2"},
	}}
	assert.Len(t, list.DataMaps(), 2)

	assert.Nil(t, Envelope{}.DataMaps())
	assert.Nil(t, Envelope{Data: "scalar"}.DataMaps())
	assert.Nil(t, Envelope{Data: []interface{}{"not", "maps"}}.DataMaps())
}

func TestEnvelope_MarshalRoundTrip(t *testing.T) {
	env := NewEnvelopeBuilder().
		WithQueueName("orders").
		WithOperation("insert").
		WithModel("order").
		WithData(map[string]interface{}{"id": "ord-1", "total": 12.5}).
		Build()
	env.Retries = 2

	payload, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "orders", decoded.QueueName)
	assert.Equal(t, "insert", decoded.Operation)
	assert.Equal(t, "order", decoded.Model)
	assert.Equal(t, 2, decoded.Retries)
	require.Len(t, decoded.DataMaps(), 1)
	assert.Equal(t, "ord-1", decoded.DataMaps()[0]["id"])
}

func TestEnvelope_OmitsEmptyOptionalFields(t *testing.T) {
	payload, err := Envelope{QueueName: "q", Operation: "op"}.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "delay_until")
	assert.NotContains(t, string(payload), "poisoned_at")
	assert.NotContains(t, string(payload), "model")
}

func TestBuilder_WithDelayUntil(t *testing.T) {
	due := time.Date(2026, 9, 1, 10, 0, 0, 0, time.Local)
	env := NewEnvelopeBuilder().
		WithQueueName("orders").
		WithOperation("create").
		WithDelayUntil(due).
		Build()

	assert.True(t, env.IsDelayed())
	assert.True(t, env.DueAt().Equal(due))
}

func TestUnmarshalEnvelope_Malformed(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("{broken"))
	assert.Error(t, err)
}
