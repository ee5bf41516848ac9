package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamq/internal/logger"
	"streamq/internal/queue"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

type portCall struct {
	op       string
	model    string
	entityID string
}

type fakePort struct {
	calls []portCall
	fail  map[string]error // entityID -> error
}

func (p *fakePort) Insert(ctx context.Context, model, entityID string, data map[string]interface{}) error {
	return p.record("insert", model, entityID)
}

func (p *fakePort) Update(ctx context.Context, model, entityID string, data map[string]interface{}) error {
	return p.record("update", model, entityID)
}

func (p *fakePort) Delete(ctx context.Context, model, entityID string) error {
	return p.record("delete", model, entityID)
}

func (p *fakePort) record(op, model, entityID string) error {
	if err := p.fail[entityID]; err != nil {
		return err
	}
	p.calls = append(p.calls, portCall{op: op, model: model, entityID: entityID})
	return nil
}

func entityEnvelope(operation, model string, data interface{}) *models.Envelope {
	return models.NewEnvelopeBuilder().
		WithQueueName("replication").
		WithOperation(operation).
		WithModel(model).
		WithData(data).
		Build()
}

func TestEntityHandlers_InsertSingleObject(t *testing.T) {
	port := &fakePort{}
	h := NewEntityHandlers(port, logger.NopLogger())

	env := entityEnvelope("insert", "customer", map[string]interface{}{
		"id":   "cust-1",
		"name": "Ada",
	})

	require.NoError(t, h.Apply(context.Background(), env))
	require.Len(t, port.calls, 1)
	assert.Equal(t, portCall{op: "insert", model: "customer", entityID: "cust-1"}, port.calls[0])
}

func TestEntityHandlers_ListDataFansOut(t *testing.T) {
	port := &fakePort{}
	h := NewEntityHandlers(port, logger.NopLogger())

	env := entityEnvelope("update", "customer", []interface{}{
		map[string]interface{}{"id": "cust-1", "name": "Ada"},
		map[string]interface{}{"id": "cust-2", "name": "Grace"},
		map[string]interface{}{"id": "cust-3", "name": "Edsger"},
	})

	require.NoError(t, h.Apply(context.Background(), env))
	require.Len(t, port.calls, 3)
	assert.Equal(t, "cust-2", port.calls[1].entityID)
}

func TestEntityHandlers_FirstFailureStopsTheFanOut(t *testing.T) {
	port := &fakePort{fail: map[string]error{"cust-2": errors.New("connection reset")}}
	h := NewEntityHandlers(port, logger.NopLogger())

	env := entityEnvelope("insert", "customer", []interface{}{
		map[string]interface{}{"id": "cust-1"},
		map[string]interface{}{"id": "cust-2"},
		map[string]interface{}{"id": "cust-3"},
	})

	err := h.Apply(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	// cust-1 was applied, cust-3 never reached.
	require.Len(t, port.calls, 1)
	assert.Equal(t, "cust-1", port.calls[0].entityID)
}

func TestEntityHandlers_NumericIDsAreAccepted(t *testing.T) {
	port := &fakePort{}
	h := NewEntityHandlers(port, logger.NopLogger())

	env := entityEnvelope("delete", "order", map[string]interface{}{"id": float64(4251)})

	require.NoError(t, h.Apply(context.Background(), env))
	require.Len(t, port.calls, 1)
	assert.Equal(t, "4251", port.calls[0].entityID)
}

func TestEntityHandlers_Validation(t *testing.T) {
	h := NewEntityHandlers(&fakePort{}, logger.NopLogger())
	ctx := context.Background()

	cases := map[string]*models.Envelope{
		"missing model": entityEnvelope("insert", "", map[string]interface{}{"id": "x"}),
		"missing data":  entityEnvelope("insert", "customer", nil),
		"missing id":    entityEnvelope("insert", "customer", map[string]interface{}{"name": "Ada"}),
		"unknown operation": entityEnvelope("merge", "customer",
			map[string]interface{}{"id": "x"}),
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.Apply(ctx, env)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestEntityHandlers_Register(t *testing.T) {
	registry := queue.NewRegistry()
	NewEntityHandlers(&fakePort{}, logger.NopLogger()).Register(registry, "replication")

	for _, op := range []string{"insert", "update", "delete"} {
		_, err := registry.Resolve("replication", op)
		assert.NoError(t, err, op)
	}
}

func TestStringOrNumberField(t *testing.T) {
	assert.Equal(t, "abc", stringOrNumberField(map[string]interface{}{"id": "abc"}, "id"))
	assert.Equal(t, "42", stringOrNumberField(map[string]interface{}{"id": float64(42)}, "id"))
	assert.Equal(t, "31337", stringOrNumberField(map[string]interface{}{"id": json.Number("31337")}, "id"))
	assert.Equal(t, "", stringOrNumberField(map[string]interface{}{"id": true}, "id"))
	assert.Equal(t, "", stringOrNumberField(map[string]interface{}{}, "id"))
}
