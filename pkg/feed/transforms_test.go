package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/gantry/pkg/store"
)

func TestDot(t *testing.T) {
	payload := map[string]interface{}{
		"service": map[string]interface{}{"id": "svc-1"},
		"flat":    "x",
	}

	assert.Equal(t, "svc-1", dot(payload, "service.id"))
	assert.Equal(t, "x", dot(payload, "flat"))
	assert.Nil(t, dot(payload, "service.missing"))
	assert.Nil(t, dot(payload, "missing.id"))
	assert.Nil(t, dot(payload, "flat.id"))
}

func TestStringifyTransform(t *testing.T) {
	tests := []struct {
		name         string
		current      store.Record
		payload      map[string]interface{}
		defaultEmpty bool
		expected     interface{}
	}{
		{
			name:     "absent input is omitted",
			payload:  map[string]interface{}{},
			expected: nil,
		},
		{
			name:         "absent input defaults to empty collection",
			payload:      map[string]interface{}{},
			defaultEmpty: true,
			expected:     "[]",
		},
		{
			name:         "absent input with empty stored value stays omitted",
			current:      store.Record{"tags": "[]"},
			payload:      map[string]interface{}{},
			defaultEmpty: true,
			expected:     nil,
		},
		{
			name:     "new value is serialized",
			payload:  map[string]interface{}{"tags": []interface{}{"a", "b"}},
			expected: `["a","b"]`,
		},
		{
			name:     "unchanged value is omitted",
			current:  store.Record{"tags": `["a","b"]`},
			payload:  map[string]interface{}{"tags": []interface{}{"a", "b"}},
			expected: nil,
		},
		{
			name:     "changed value is serialized",
			current:  store.Record{"tags": `["a"]`},
			payload:  map[string]interface{}{"tags": []interface{}{"a", "b"}},
			expected: `["a","b"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stringifyTransform(tt.current, tt.payload, "tags", tt.defaultEmpty)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNamespaceFromTags(t *testing.T) {
	tests := []struct {
		name     string
		current  store.Record
		payload  map[string]interface{}
		expected interface{}
	}{
		{
			name:     "extracts namespace token",
			payload:  map[string]interface{}{"tags": []interface{}{"other", "ns.health"}},
			expected: "health",
		},
		{
			name:     "requires a single dot after the prefix",
			payload:  map[string]interface{}{"tags": []interface{}{"ns.health.sub", "ns.finance"}},
			expected: "finance",
		},
		{
			name:     "no tags field",
			payload:  map[string]interface{}{},
			expected: nil,
		},
		{
			name:     "no matching tag",
			payload:  map[string]interface{}{"tags": []interface{}{"plain", "other.ns"}},
			expected: nil,
		},
		{
			name:     "unchanged value is omitted",
			current:  store.Record{"namespace": "health"},
			payload:  map[string]interface{}{"tags": []interface{}{"ns.health"}},
			expected: nil,
		},
		{
			name:     "changed value is emitted",
			current:  store.Record{"namespace": "old"},
			payload:  map[string]interface{}{"tags": []interface{}{"ns.health"}},
			expected: "health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := namespaceFromTags(tt.current, tt.payload, "namespace")
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestConnectFragment(t *testing.T) {
	empty := connectFragment(nil)
	assert.Equal(t, map[string]interface{}{"disconnectAll": true}, empty)

	two := connectFragment([]string{"a", "b"})
	assert.Equal(t, true, two["disconnectAll"])
	assert.Equal(t, []map[string]interface{}{{"id": "a"}, {"id": "b"}}, two["connect"])
}

func TestRelationUnchanged(t *testing.T) {
	current := store.Record{
		"orgUnits":     []interface{}{map[string]interface{}{"id": "a"}, map[string]interface{}{"id": "b"}},
		"organization": map[string]interface{}{"id": "x"},
	}

	assert.True(t, relationUnchanged(current, "orgUnits", []string{"b", "a"}))
	assert.False(t, relationUnchanged(current, "orgUnits", []string{"a"}))
	assert.False(t, relationUnchanged(current, "orgUnits", []string{"a", "c"}))
	assert.True(t, relationUnchanged(current, "organization", []string{"x"}))
	assert.False(t, relationUnchanged(nil, "orgUnits", nil))
}
