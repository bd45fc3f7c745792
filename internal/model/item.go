package model

import "time"

// Item is the DB entity persisted in background_processing_items.
type Item struct {
	ID                 string    `db:"id"`
	CreatedAt          time.Time `db:"created_at"`
	CorrelationID      string    `db:"correlation_id"`
	ItemType           string    `db:"item_type"`
	SerializedItemData string    `db:"serialized_item_data"`
}
