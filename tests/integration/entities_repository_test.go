package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamq/internal/handlers"
)

func fetchEntity(t *testing.T, db *sql.DB, model, entityID string) (map[string]interface{}, bool) {
	t.Helper()

	var raw []byte
	err := db.QueryRow(
		`SELECT data FROM entities WHERE model = $1 AND entity_id = $2`,
		model, entityID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false
	}
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	return data, true
}

func TestPostgresPersistence_InsertAndFetch(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)
	port := handlers.NewPostgresPersistence(infra.PostgresDB)
	ctx := context.Background()

	err := port.Insert(ctx, "customer", "cust-1", map[string]interface{}{
		"id":   "cust-1",
		"name": "Ada",
		"tier": "gold",
	})
	require.NoError(t, err)

	data, found := fetchEntity(t, infra.PostgresDB, "customer", "cust-1")
	require.True(t, found)
	assert.Equal(t, "Ada", data["name"])
	assert.Equal(t, "gold", data["tier"])
}

func TestPostgresPersistence_InsertIsIdempotent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)
	port := handlers.NewPostgresPersistence(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, port.Insert(ctx, "customer", "cust-2",
		map[string]interface{}{"id": "cust-2", "name": "Grace"}))
	// A replay of the same delivery must not error and must win.
	require.NoError(t, port.Insert(ctx, "customer", "cust-2",
		map[string]interface{}{"id": "cust-2", "name": "Grace H."}))

	data, found := fetchEntity(t, infra.PostgresDB, "customer", "cust-2")
	require.True(t, found)
	assert.Equal(t, "Grace H.", data["name"])
}

func TestPostgresPersistence_UpdateMergesFields(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)
	port := handlers.NewPostgresPersistence(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, port.Insert(ctx, "customer", "cust-3",
		map[string]interface{}{"id": "cust-3", "name": "Edsger", "tier": "silver"}))
	require.NoError(t, port.Update(ctx, "customer", "cust-3",
		map[string]interface{}{"tier": "gold"}))

	data, found := fetchEntity(t, infra.PostgresDB, "customer", "cust-3")
	require.True(t, found)
	assert.Equal(t, "Edsger", data["name"])
	assert.Equal(t, "gold", data["tier"])
}

func TestPostgresPersistence_Delete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)
	port := handlers.NewPostgresPersistence(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, port.Insert(ctx, "customer", "cust-4",
		map[string]interface{}{"id": "cust-4"}))
	require.NoError(t, port.Delete(ctx, "customer", "cust-4"))

	_, found := fetchEntity(t, infra.PostgresDB, "customer", "cust-4")
	assert.False(t, found)

	// Deleting an absent entity is not an error.
	require.NoError(t, port.Delete(ctx, "customer", "cust-4"))
}

func TestPostgresPersistence_ModelsAreIsolated(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)
	port := handlers.NewPostgresPersistence(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, port.Insert(ctx, "customer", "shared-id",
		map[string]interface{}{"kind": "customer"}))
	require.NoError(t, port.Insert(ctx, "order", "shared-id",
		map[string]interface{}{"kind": "order"}))

	customer, found := fetchEntity(t, infra.PostgresDB, "customer", "shared-id")
	require.True(t, found)
	assert.Equal(t, "customer", customer["kind"])

	order, found := fetchEntity(t, infra.PostgresDB, "order", "shared-id")
	require.True(t, found)
	assert.Equal(t, "order", order["kind"])
}
