// Package memory provides an in-memory catalog.ItemStore for tests and
// local development. It mirrors the PostgreSQL repo's semantics, including
// the all-or-nothing batch behavior and document-path filters.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/beckn-labs/catalog-indexer/internal/catalog"
)

// Store is a thread-safe in-memory catalog.ItemStore.
type Store struct {
	mu    sync.RWMutex
	items map[string]catalog.Item

	// FailUpserts makes every upsert fail, for exercising store-failure
	// paths in tests.
	FailUpserts error
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]catalog.Item)}
}

var _ catalog.ItemStore = (*Store)(nil)

func (s *Store) FindByID(_ context.Context, itemID string) (*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &item, nil
}

func (s *Store) Upsert(_ context.Context, item catalog.Item) (catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return catalog.Item{}, s.FailUpserts
	}
	return s.upsertLocked(item), nil
}

func (s *Store) UpsertBatch(_ context.Context, items []catalog.Item) ([]catalog.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return nil, s.FailUpserts
	}
	stored := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		stored = append(stored, s.upsertLocked(item))
	}
	return stored, nil
}

// upsertLocked merges item into the store under the write lock, preserving
// creation metadata on update.
func (s *Store) upsertLocked(item catalog.Item) catalog.Item {
	if existing, ok := s.items[item.ItemID]; ok {
		existing.ApplyUpdate(item, item.UpdatedAt)
		s.items[item.ItemID] = existing
		return existing
	}
	s.items[item.ItemID] = item
	return item
}

func (s *Store) FindByProviderID(_ context.Context, providerID string) ([]catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []catalog.Item
	for _, item := range s.items {
		if item.ProviderID == providerID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) DeleteByID(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemID)
	return nil
}

func (s *Store) DeleteByProviderID(_ context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.ProviderID == providerID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *Store) CountByProviderID(_ context.Context, providerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, item := range s.items {
		if item.ProviderID == providerID {
			count++
		}
	}
	return count, nil
}

func (s *Store) FindByCurrency(_ context.Context, currency string) ([]catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []catalog.Item
	for _, item := range s.items {
		if doc := decodePrice(item.ItemData); doc != nil && doc.Currency == currency {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) FindByPriceRange(_ context.Context, minPrice, maxPrice float64) ([]catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []catalog.Item
	for _, item := range s.items {
		doc := decodePrice(item.ItemData)
		if doc == nil {
			continue
		}
		value, ok := doc.value()
		if ok && value >= minPrice && value <= maxPrice {
			items = append(items, item)
		}
	}
	return items, nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type priceDoc struct {
	Currency string          `json:"currency"`
	Value    json.RawMessage `json:"value"`
}

// value parses the price value, which appears as either a JSON number or a
// numeric string in catalog documents.
func (p *priceDoc) value() (float64, bool) {
	var f float64
	if err := json.Unmarshal(p.Value, &f); err == nil {
		return f, true
	}
	var str string
	if err := json.Unmarshal(p.Value, &str); err == nil {
		if err := json.Unmarshal([]byte(str), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func decodePrice(data json.RawMessage) *priceDoc {
	var doc struct {
		Price *priceDoc `json:"price"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.Price
}
