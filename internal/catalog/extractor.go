package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InvalidFormatError reports a catalog event missing one of the required
// structural sections. It is terminal for the record; no partial extraction
// is attempted.
type InvalidFormatError struct {
	msg string
}

func (e *InvalidFormatError) Error() string { return e.msg }

// Class implements the dead-letter error class contract.
func (e *InvalidFormatError) Class() string { return "InvalidFormat" }

func invalidFormat(format string, args ...any) *InvalidFormatError {
	return &InvalidFormatError{msg: fmt.Sprintf(format, args...)}
}

// Skip records one provider or item dropped during extraction. Skips are
// diagnostics, not failures: they never abort sibling extraction.
type Skip struct {
	ProviderID string
	ItemID     string
	Reason     string
}

// Extraction is the outcome of walking one catalog event: the items that
// extracted cleanly and the sub-documents that were dropped.
type Extraction struct {
	Items   []Item
	Skipped []Skip
}

// Extractor parses catalog-shaped events and extracts one normalized Item
// per nested provider item. The clock stamps the extracted records.
type Extractor struct {
	now func() time.Time
	log *zap.SugaredLogger
}

// NewExtractor creates an Extractor using the given clock.
func NewExtractor(now func() time.Time, log *zap.SugaredLogger) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{now: now, log: log}
}

type providerDoc struct {
	ID    string            `json:"id"`
	Items []json.RawMessage `json:"items"`
}

type itemDoc struct {
	ID         string `json:"id"`
	Descriptor struct {
		Name string `json:"name"`
	} `json:"descriptor"`
}

// Extract validates the event's structure and walks its providers and items
// in document order. A provider or item with an empty or unreadable id is
// skipped with a diagnostic; a failure extracting one item never aborts its
// siblings. The error return is non-nil only for a structurally invalid
// event.
func (x *Extractor) Extract(raw []byte) (*Extraction, error) {
	providers, err := providersSection(raw)
	if err != nil {
		return nil, err
	}

	out := &Extraction{}
	for _, rawProvider := range providers {
		var provider providerDoc
		if err := json.Unmarshal(rawProvider, &provider); err != nil {
			out.Skipped = append(out.Skipped, Skip{Reason: fmt.Sprintf("unreadable provider entry: %v", err)})
			x.log.Warnw("skipping unreadable provider entry", "error", err)
			continue
		}
		if provider.ID == "" {
			out.Skipped = append(out.Skipped, Skip{Reason: "provider with missing id"})
			x.log.Warn("skipping provider with missing id")
			continue
		}

		for _, rawItem := range provider.Items {
			item, err := x.extractItem(provider.ID, rawItem)
			if err != nil {
				out.Skipped = append(out.Skipped, Skip{ProviderID: provider.ID, Reason: err.Error()})
				x.log.Warnw("skipping item", "providerID", provider.ID, "error", err)
				continue
			}
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

// extractItem normalizes one item sub-document. The entire sub-document is
// preserved verbatim as the item's data.
func (x *Extractor) extractItem(providerID string, rawItem json.RawMessage) (Item, error) {
	var doc itemDoc
	if err := json.Unmarshal(rawItem, &doc); err != nil {
		return Item{}, fmt.Errorf("unreadable item entry: %w", err)
	}
	if doc.ID == "" {
		return Item{}, fmt.Errorf("item with missing id")
	}

	data := make(json.RawMessage, len(rawItem))
	copy(data, rawItem)
	return NewItem(doc.ID, doc.Descriptor.Name, providerID, data, x.now()), nil
}

// providersSection checks the event's required structure and returns the
// providers collection. Required: a context object with domain and action,
// and message.catalog.providers.
func providersSection(raw []byte) ([]json.RawMessage, error) {
	var root struct {
		Context json.RawMessage `json:"context"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, invalidFormat("failed to parse catalog event: %v", err)
	}
	if len(root.Context) == 0 {
		return nil, invalidFormat("missing required field: context")
	}
	if len(root.Message) == 0 {
		return nil, invalidFormat("missing required field: message")
	}

	var contextDoc map[string]json.RawMessage
	if err := json.Unmarshal(root.Context, &contextDoc); err != nil {
		return nil, invalidFormat("context is not an object: %v", err)
	}
	if _, ok := contextDoc["domain"]; !ok {
		return nil, invalidFormat("missing required context field: domain")
	}
	if _, ok := contextDoc["action"]; !ok {
		return nil, invalidFormat("missing required context field: action")
	}

	var messageDoc struct {
		Catalog json.RawMessage `json:"catalog"`
	}
	if err := json.Unmarshal(root.Message, &messageDoc); err != nil {
		return nil, invalidFormat("message is not an object: %v", err)
	}
	if len(messageDoc.Catalog) == 0 {
		return nil, invalidFormat("missing catalog in message")
	}

	var catalogDoc struct {
		Providers []json.RawMessage `json:"providers"`
	}
	if err := json.Unmarshal(messageDoc.Catalog, &catalogDoc); err != nil {
		return nil, invalidFormat("catalog is not an object: %v", err)
	}
	if catalogDoc.Providers == nil {
		return nil, invalidFormat("missing providers in catalog")
	}
	return catalogDoc.Providers, nil
}
