package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/jmehdipour/holo/internal/worker"
	"github.com/jmoiron/sqlx"
)

// ItemsRepository defines persistence for background_processing_items.
// Every method takes an optional tx; nil means the call commits on its own.
type ItemsRepository interface {
	HasItemOfType(ctx context.Context, tx *sqlx.Tx, itemType string) (bool, error)
	// Enqueue encodes payload and stores it as a new item. Returns the item id.
	Enqueue(ctx context.Context, tx *sqlx.Tx, payload worker.Payload, itemType, correlationID string) (string, error)
	DequeueBatch(ctx context.Context, tx *sqlx.Tx, maxGroups int) ([]model.Item, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id string) error
	DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error
}

type ItemsRepositoryImpl struct {
	db    *sqlx.DB
	codec *worker.Codec
	clock util.Clock
}

func NewItemsRepository(db *sqlx.DB, codec *worker.Codec, clock util.Clock) *ItemsRepositoryImpl {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &ItemsRepositoryImpl{db: db, codec: codec, clock: clock}
}

func (r *ItemsRepositoryImpl) HasItemOfType(ctx context.Context, tx *sqlx.Tx, itemType string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM background_processing_items WHERE item_type = ?)`
	var exists bool
	if err := sqlx.GetContext(ctx, reader(r.db, tx), &exists, q, itemType); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ItemsRepositoryImpl) Enqueue(ctx context.Context, tx *sqlx.Tx, payload worker.Payload, itemType, correlationID string) (string, error) {
	data, err := r.codec.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("encode item: %w", err)
	}

	now := r.clock.Now()
	id := util.NewIDAt(now)

	const q = `
		INSERT INTO background_processing_items
		    (id, created_at, correlation_id, item_type, serialized_item_data)
		VALUES
		    (?,  ?,          ?,              ?,         ?)
	`
	err = withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id, now, correlationID, itemType, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DequeueBatch returns the oldest item of each correlation group, oldest
// groups first, capped at maxGroups. Rows are not locked or removed.
func (r *ItemsRepositoryImpl) DequeueBatch(ctx context.Context, tx *sqlx.Tx, maxGroups int) ([]model.Item, error) {
	if maxGroups <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, created_at, correlation_id, item_type, serialized_item_data
		FROM (
		    SELECT id, created_at, correlation_id, item_type, serialized_item_data,
		           ROW_NUMBER() OVER (PARTITION BY correlation_id ORDER BY created_at, id) AS rn
		    FROM background_processing_items
		) ranked
		WHERE rn = 1
		ORDER BY created_at, id
		LIMIT ?
	`
	var items []model.Item
	if err := sqlx.SelectContext(ctx, reader(r.db, tx), &items, q, maxGroups); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemsRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `DELETE FROM background_processing_items WHERE id = ?`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

// DeleteBatch removes many items using a single statement.
func (r *ItemsRepositoryImpl) DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM background_processing_items WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}
