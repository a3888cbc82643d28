package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beckn-labs/catalog-indexer/pkg/kafka/testutils"
)

var testClock = func() time.Time { return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC) }

const catalogEvent = `{
	"context": {"domain": "retail", "action": "on_search"},
	"message": {
		"catalog": {
			"providers": [
				{
					"id": "provider-1",
					"items": [
						{"id": "item-1", "descriptor": {"name": "Rice 1kg"}, "price": {"currency": "INR", "value": "120"}},
						{"id": "item-2", "descriptor": {"name": "Wheat 1kg"}, "price": {"currency": "INR", "value": "80"}}
					]
				},
				{
					"id": "provider-2",
					"items": [
						{"id": "item-3", "descriptor": {"name": "Milk 1l"}}
					]
				}
			]
		}
	}
}`

func TestExtract_WalksAllProviders(t *testing.T) {
	x := NewExtractor(testClock, testutils.NewTestLogger(t))

	out, err := x.Extract([]byte(catalogEvent))
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	assert.Empty(t, out.Skipped)

	first := out.Items[0]
	assert.Equal(t, "item-1", first.ItemID)
	assert.Equal(t, "Rice 1kg", first.ItemName)
	assert.Equal(t, "provider-1", first.ProviderID)
	assert.Equal(t, testClock(), first.CreatedAt)
	assert.Equal(t, testClock(), first.UpdatedAt)
	assert.Equal(t, SystemIdentity, first.CreatedBy)
	assert.Equal(t, SystemIdentity, first.UpdatedBy)

	assert.Equal(t, "provider-2", out.Items[2].ProviderID)
	assert.Equal(t, "item-3", out.Items[2].ItemID)
}

// The item's complete sub-document is preserved verbatim, nested structure
// and all.
func TestExtract_PreservesItemDataVerbatim(t *testing.T) {
	x := NewExtractor(testClock, testutils.NewTestLogger(t))

	raw := `{"id":"item-1","descriptor":{"name":"Rice 1kg"},"price":{"currency":"INR","value":"120"},"tags":[{"code":"veg"}]}`
	doc := `{
		"context": {"domain": "retail", "action": "on_search"},
		"message": {"catalog": {"providers": [{"id": "p1", "items": [` + raw + `]}]}}
	}`

	out, err := x.Extract([]byte(doc))
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, raw, string(out.Items[0].ItemData))
}

func TestExtract_SkipsBrokenEntriesWithoutAborting(t *testing.T) {
	x := NewExtractor(testClock, testutils.NewTestLogger(t))

	doc := `{
		"context": {"domain": "retail", "action": "on_search"},
		"message": {
			"catalog": {
				"providers": [
					{"items": [{"id": "orphan"}]},
					{"id": "provider-1", "items": [
						{"descriptor": {"name": "no id"}},
						{"id": "item-ok"},
						"not an object"
					]}
				]
			}
		}
	}`

	out, err := x.Extract([]byte(doc))
	require.NoError(t, err)

	require.Len(t, out.Items, 1, "the readable item survives its broken siblings")
	assert.Equal(t, "item-ok", out.Items[0].ItemID)

	require.Len(t, out.Skipped, 3)
	assert.Equal(t, "provider with missing id", out.Skipped[0].Reason)
	assert.Contains(t, out.Skipped[1].Reason, "item with missing id")
	assert.Contains(t, out.Skipped[2].Reason, "unreadable item entry")
}

func TestExtract_EmptyProvidersIsValid(t *testing.T) {
	x := NewExtractor(testClock, testutils.NewTestLogger(t))

	doc := `{
		"context": {"domain": "retail", "action": "on_search"},
		"message": {"catalog": {"providers": []}}
	}`

	out, err := x.Extract([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Empty(t, out.Skipped)
}

func TestExtract_StructuralFailures(t *testing.T) {
	x := NewExtractor(testClock, testutils.NewTestLogger(t))

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"not json", `garbage`, "failed to parse catalog event"},
		{"missing context", `{"message": {"catalog": {"providers": []}}}`, "missing required field: context"},
		{"missing domain", `{"context": {"action": "on_search"}, "message": {"catalog": {"providers": []}}}`, "missing required context field: domain"},
		{"missing action", `{"context": {"domain": "retail"}, "message": {"catalog": {"providers": []}}}`, "missing required context field: action"},
		{"missing message", `{"context": {"domain": "retail", "action": "on_search"}}`, "missing required field: message"},
		{"missing catalog", `{"context": {"domain": "retail", "action": "on_search"}, "message": {}}`, "missing catalog in message"},
		{"missing providers", `{"context": {"domain": "retail", "action": "on_search"}, "message": {"catalog": {}}}`, "missing providers in catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Extract([]byte(tt.payload))
			require.Error(t, err)

			var ife *InvalidFormatError
			require.ErrorAs(t, err, &ife)
			assert.Equal(t, "InvalidFormat", ife.Class())
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
