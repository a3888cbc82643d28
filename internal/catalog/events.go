package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Downstream event tags. Version is the schema version of the materialized
// event shapes, not of this service.
const (
	EventTypeItemStored      = "catalog_item_stored"
	EventTypeProcessingError = "catalog_processing_error"
	EventSource              = "catalog-publish"
	EventVersion             = "2.0"

	// UnknownProvider is the placeholder identity used for error events when
	// no provider id can be recovered from the failed record.
	UnknownProvider = "unknown"
)

// ItemStoredEvent is published once per durably stored item, keyed by item
// id so one item's event history co-locates on one partition. ItemData is
// the original item sub-document; downstream indexing handles any
// transformation.
type ItemStoredEvent struct {
	EventType  string          `json:"event_type"`
	EventID    string          `json:"event_id"`
	Timestamp  string          `json:"timestamp"`
	Source     string          `json:"source"`
	Version    string          `json:"version"`
	ItemID     string          `json:"item_id"`
	ProviderID string          `json:"provider_id"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
	ItemData   json.RawMessage `json:"item_data"`
}

// NewItemStoredEvent shapes the materialized event for one stored item.
func NewItemStoredEvent(item Item, now time.Time) ItemStoredEvent {
	return ItemStoredEvent{
		EventType:  EventTypeItemStored,
		EventID:    uuid.NewString(),
		Timestamp:  now.Format(time.RFC3339),
		Source:     EventSource,
		Version:    EventVersion,
		ItemID:     item.ItemID,
		ProviderID: item.ProviderID,
		CreatedAt:  item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  item.UpdatedAt.Format(time.RFC3339),
		ItemData:   item.ItemData,
	}
}

// ProcessingErrorEvent is published exactly once per failed catalog record,
// keyed by the best-available provider id. OriginalEvent carries the raw
// input for replay and triage.
type ProcessingErrorEvent struct {
	EventType     string `json:"event_type"`
	EventID       string `json:"event_id"`
	Timestamp     string `json:"timestamp"`
	Source        string `json:"source"`
	Version       string `json:"version"`
	ProviderID    string `json:"provider_id"`
	ErrorMessage  string `json:"error_message"`
	OriginalEvent string `json:"original_event"`
}

// NewProcessingErrorEvent shapes the error event for a failed record.
func NewProcessingErrorEvent(providerID, errorMessage string, originalEvent []byte, now time.Time) ProcessingErrorEvent {
	return ProcessingErrorEvent{
		EventType:     EventTypeProcessingError,
		EventID:       uuid.NewString(),
		Timestamp:     now.Format(time.RFC3339),
		Source:        EventSource,
		Version:       EventVersion,
		ProviderID:    providerID,
		ErrorMessage:  errorMessage,
		OriginalEvent: string(originalEvent),
	}
}

// RecoverProviderID best-effort extracts a provider id from the raw payload
// by inspecting the first providers entry, falling back to UnknownProvider.
func RecoverProviderID(raw []byte) string {
	var root struct {
		Message struct {
			Catalog struct {
				Providers []struct {
					ID string `json:"id"`
				} `json:"providers"`
			} `json:"catalog"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return UnknownProvider
	}
	providers := root.Message.Catalog.Providers
	if len(providers) == 0 || providers[0].ID == "" {
		return UnknownProvider
	}
	return providers[0].ID
}
