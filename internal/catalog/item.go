// Package catalog implements the catalog-event materialization path:
// nested provider/item extraction, idempotent storage, and per-item event
// fan-out.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SystemIdentity is the attribution recorded when no explicit actor is
// known.
const SystemIdentity = "system"

// ErrNotFound is returned by stores when no item matches the given key.
var ErrNotFound = errors.New("catalog item not found")

// Item is a materialized catalog item record. ItemData holds the complete
// original item sub-document verbatim; the store never interprets its
// internal fields except through explicit document-path queries.
type Item struct {
	ItemID     string          `json:"itemId"`
	ItemName   string          `json:"itemName,omitempty"`
	ProviderID string          `json:"providerId"`
	ItemData   json.RawMessage `json:"itemData"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	CreatedBy  string          `json:"createdBy"`
	UpdatedBy  string          `json:"updatedBy"`
}

// NewItem constructs an Item with server-assigned timestamps from the given
// clock reading and default attribution.
func NewItem(itemID, itemName, providerID string, itemData json.RawMessage, now time.Time) Item {
	return Item{
		ItemID:     itemID,
		ItemName:   itemName,
		ProviderID: providerID,
		ItemData:   itemData,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  SystemIdentity,
		UpdatedBy:  SystemIdentity,
	}
}

// ApplyUpdate overwrites the mutable fields from in and bumps UpdatedAt.
// ItemID, CreatedAt and CreatedBy are stable across updates.
func (i *Item) ApplyUpdate(in Item, now time.Time) {
	i.ItemName = in.ItemName
	i.ProviderID = in.ProviderID
	i.ItemData = in.ItemData
	i.UpdatedAt = now
	i.UpdatedBy = SystemIdentity
}

// ItemStore is the persistence port for catalog items. Upserts are keyed by
// ItemID: a second arrival with the same id overwrites, never duplicates.
// Implementations must be safe for concurrent use; concurrent upserts to the
// same id resolve last-writer-wins.
type ItemStore interface {
	// FindByID returns the item with the given id, or ErrNotFound.
	FindByID(ctx context.Context, itemID string) (*Item, error)
	// Upsert inserts or overwrites one item and returns the stored state.
	Upsert(ctx context.Context, item Item) (Item, error)
	// UpsertBatch applies every upsert in a single transaction: either all
	// items in the batch are durably applied, or none is.
	UpsertBatch(ctx context.Context, items []Item) ([]Item, error)
	// FindByProviderID returns a provider's items, newest first.
	FindByProviderID(ctx context.Context, providerID string) ([]Item, error)
	// DeleteByID removes one item.
	DeleteByID(ctx context.Context, itemID string) error
	// DeleteByProviderID removes all of a provider's items.
	DeleteByProviderID(ctx context.Context, providerID string) error
	// CountByProviderID counts a provider's items.
	CountByProviderID(ctx context.Context, providerID string) (int64, error)
	// FindByCurrency filters on the item document's price currency.
	FindByCurrency(ctx context.Context, currency string) ([]Item, error)
	// FindByPriceRange filters on the item document's numeric price value.
	FindByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]Item, error)
}
