package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"streamq/internal/logger"
	"streamq/internal/queue"
	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

// PersistencePort replicates entity changes into a relational store. The
// entity ID is carried inside data as "id".
type PersistencePort interface {
	Insert(ctx context.Context, model string, entityID string, data map[string]interface{}) error
	Update(ctx context.Context, model string, entityID string, data map[string]interface{}) error
	Delete(ctx context.Context, model string, entityID string) error
}

// EntityHandlers replicates generic entity CRUD envelopes into a
// PersistencePort. List-valued data fans out element-wise; the first failed
// element fails the whole delivery and the retry replays all elements, which
// the upsert-style port tolerates.
type EntityHandlers struct {
	port PersistencePort
	log  logger.Logger
}

func NewEntityHandlers(port PersistencePort, log logger.Logger) *EntityHandlers {
	return &EntityHandlers{port: port, log: log}
}

// Register installs the replication operations on the given queue.
func (h *EntityHandlers) Register(registry *queue.Registry, queueName string) {
	registry.Register(queueName, "insert", h.Apply)
	registry.Register(queueName, "update", h.Apply)
	registry.Register(queueName, "delete", h.Apply)
}

// Apply runs the envelope's operation against the persistence port for every
// element of data.
func (h *EntityHandlers) Apply(ctx context.Context, env *models.Envelope) error {
	if env.Model == "" {
		return apperrors.ErrValidation.
			WithDetail("message", "entity envelope requires a model name")
	}

	items := env.DataMaps()
	if len(items) == 0 {
		return apperrors.ErrValidation.
			WithDetail("message", "entity envelope requires object data")
	}

	for _, item := range items {
		entityID := stringOrNumberField(item, "id")
		if entityID == "" {
			return apperrors.ErrValidation.
				WithDetail("message", "entity data requires an id").
				WithDetail("model", env.Model)
		}

		var err error
		switch env.Operation {
		case "insert":
			err = h.port.Insert(ctx, env.Model, entityID, item)
		case "update":
			err = h.port.Update(ctx, env.Model, entityID, item)
		case "delete":
			err = h.port.Delete(ctx, env.Model, entityID)
		default:
			return apperrors.ErrValidation.
				WithDetail("message", "unknown entity operation").
				WithDetail("operation", env.Operation)
		}
		if err != nil {
			return apperrors.ErrHandlerFailure.
				WithDetail("message", "entity replication failed").
				WithCause(err).
				WithDetail("model", env.Model).
				WithDetail("entity_id", entityID)
		}

		h.log.InfowCtx(ctx, "entity replicated",
			"model", env.Model, "operation", env.Operation, "entity_id", entityID)
	}
	return nil
}

func stringOrNumberField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// PostgresPersistence stores entity snapshots in a single jsonb-keyed table.
type PostgresPersistence struct {
	db *sql.DB
}

func NewPostgresPersistence(db *sql.DB) *PostgresPersistence {
	return &PostgresPersistence{db: db}
}

func (p *PostgresPersistence) Insert(ctx context.Context, model, entityID string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode entity data: %w", err)
	}
	// Replays of the same delivery must not error, so insert is an upsert.
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO entities (model, entity_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (model, entity_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		model, entityID, payload)
	if err != nil {
		return fmt.Errorf("failed to insert entity %s/%s: %w", model, entityID, err)
	}
	return nil
}

func (p *PostgresPersistence) Update(ctx context.Context, model, entityID string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode entity data: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE entities SET data = data || $3, updated_at = NOW()
		WHERE model = $1 AND entity_id = $2`,
		model, entityID, payload)
	if err != nil {
		return fmt.Errorf("failed to update entity %s/%s: %w", model, entityID, err)
	}
	return nil
}

func (p *PostgresPersistence) Delete(ctx context.Context, model, entityID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM entities WHERE model = $1 AND entity_id = $2`,
		model, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete entity %s/%s: %w", model, entityID, err)
	}
	return nil
}
