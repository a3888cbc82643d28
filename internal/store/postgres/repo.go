// Package postgres implements the catalog ItemStore on PostgreSQL. Item
// documents live in a JSONB column queried by document path, not
// schema-enforced columns.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beckn-labs/catalog-indexer/internal/catalog"
)

const itemColumns = `item_id, item_name, provider_id, item_data, created_at, updated_at, created_by, updated_by`

const upsertSQL = `
INSERT INTO catalog_items (item_id, item_name, provider_id, item_data, created_at, updated_at, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (item_id) DO UPDATE SET
	item_name   = EXCLUDED.item_name,
	provider_id = EXCLUDED.provider_id,
	item_data   = EXCLUDED.item_data,
	updated_at  = EXCLUDED.updated_at,
	updated_by  = EXCLUDED.updated_by
RETURNING ` + itemColumns

// Repo is a PostgreSQL-backed catalog.ItemStore.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo creates a Repo on an existing connection pool.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ catalog.ItemStore = (*Repo)(nil)

// FindByID returns the item with the given id, or catalog.ErrNotFound.
func (r *Repo) FindByID(ctx context.Context, itemID string) (*catalog.Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE item_id = $1`, itemID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find catalog item %q: %w", itemID, err)
	}
	return &item, nil
}

// Upsert inserts or overwrites one item, keyed by item id, and returns the
// stored state. Concurrent upserts to the same id resolve last-writer-wins
// at the row level.
func (r *Repo) Upsert(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	row := r.pool.QueryRow(ctx, upsertSQL, upsertArgs(item)...)
	stored, err := scanItem(row)
	if err != nil {
		return catalog.Item{}, fmt.Errorf("failed to upsert catalog item %q: %w", item.ItemID, err)
	}
	return stored, nil
}

// UpsertBatch applies every upsert inside a single transaction. Either all
// of the batch's items are durably applied or, on any failure, none is.
func (r *Repo) UpsertBatch(ctx context.Context, items []catalog.Item) ([]catalog.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	stored := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		row := tx.QueryRow(ctx, upsertSQL, upsertArgs(item)...)
		s, err := scanItem(row)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert catalog item %q: %w", item.ItemID, err)
		}
		stored = append(stored, s)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit upsert batch: %w", err)
	}
	return stored, nil
}

// FindByProviderID returns a provider's items, newest first.
func (r *Repo) FindByProviderID(ctx context.Context, providerID string) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE provider_id = $1 ORDER BY created_at DESC`,
		providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items for provider %q: %w", providerID, err)
	}
	return collectItems(rows)
}

// DeleteByID removes one item. Deleting an absent id is not an error.
func (r *Repo) DeleteByID(ctx context.Context, itemID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM catalog_items WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete catalog item %q: %w", itemID, err)
	}
	return nil
}

// DeleteByProviderID removes all of a provider's items.
func (r *Repo) DeleteByProviderID(ctx context.Context, providerID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM catalog_items WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("failed to delete items for provider %q: %w", providerID, err)
	}
	return nil
}

// CountByProviderID counts a provider's items.
func (r *Repo) CountByProviderID(ctx context.Context, providerID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM catalog_items WHERE provider_id = $1`, providerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items for provider %q: %w", providerID, err)
	}
	return count, nil
}

// FindByCurrency filters on the price currency inside the item document.
func (r *Repo) FindByCurrency(ctx context.Context, currency string) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE item_data->'price'->>'currency' = $1`,
		currency)
	if err != nil {
		return nil, fmt.Errorf("failed to query items by currency %q: %w", currency, err)
	}
	return collectItems(rows)
}

// FindByPriceRange filters on the numeric price value inside the item
// document.
func (r *Repo) FindByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM catalog_items
		 WHERE (item_data->'price'->>'value')::numeric BETWEEN $1 AND $2`,
		minPrice, maxPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to query items by price range: %w", err)
	}
	return collectItems(rows)
}

func upsertArgs(item catalog.Item) []any {
	var name *string
	if item.ItemName != "" {
		name = &item.ItemName
	}
	return []any{
		item.ItemID,
		name,
		item.ProviderID,
		[]byte(item.ItemData),
		item.CreatedAt,
		item.UpdatedAt,
		item.CreatedBy,
		item.UpdatedBy,
	}
}

func scanItem(row pgx.Row) (catalog.Item, error) {
	var item catalog.Item
	var name *string
	var data []byte
	err := row.Scan(
		&item.ItemID,
		&name,
		&item.ProviderID,
		&data,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CreatedBy,
		&item.UpdatedBy,
	)
	if err != nil {
		return catalog.Item{}, err
	}
	if name != nil {
		item.ItemName = *name
	}
	item.ItemData = data
	return item, nil
}

func collectItems(rows pgx.Rows) ([]catalog.Item, error) {
	defer rows.Close()
	var items []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog items: %w", err)
	}
	return items, nil
}
