package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()

	require.True(t, registry.Has("Organization"))
	require.True(t, registry.Has("GatewayPlugin"))
	assert.False(t, registry.Has("Bogus"))

	plugin, _ := registry.Get("GatewayPlugin")
	assert.True(t, plugin.ChildOnly)

	org, _ := registry.Get("Organization")
	assert.Equal(t, "allOrganizations", org.Query)
	assert.Equal(t, "extForeignKey", org.RefKey)
	assert.Equal(t, TransformConnectExclusiveList, org.Transforms["orgUnits"].Kind)
	assert.True(t, org.Transforms["orgUnits"].SyncFirst)
}

func TestRegistryEntitiesSorted(t *testing.T) {
	entities := DefaultRegistry().Entities()
	require.NotEmpty(t, entities)
	for i := 1; i < len(entities); i++ {
		assert.Less(t, entities[i-1], entities[i])
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name        string
		descriptors map[string]Descriptor
		wantErr     string
	}{
		{
			name: "missing query",
			descriptors: map[string]Descriptor{
				"X": {RefKey: "ref"},
			},
			wantErr: "missing query",
		},
		{
			name: "missing refKey",
			descriptors: map[string]Descriptor{
				"X": {Query: "allXs"},
			},
			wantErr: "missing refKey",
		},
		{
			name: "unknown transform kind",
			descriptors: map[string]Descriptor{
				"X": {Query: "allXs", RefKey: "ref", Transforms: map[string]Transform{
					"f": {Kind: TransformKind(99)},
				}},
			},
			wantErr: "unknown transform kind",
		},
		{
			name: "exclusive list without syncFirst",
			descriptors: map[string]Descriptor{
				"X": {Query: "allXs", RefKey: "ref", Transforms: map[string]Transform{
					"f": {Kind: TransformConnectExclusiveList, List: "X"},
				}},
			},
			wantErr: "requires SyncFirst",
		},
		{
			name: "exclusive list referencing unknown child",
			descriptors: map[string]Descriptor{
				"X": {Query: "allXs", RefKey: "ref", Transforms: map[string]Transform{
					"f": {Kind: TransformConnectExclusiveList, List: "Y", SyncFirst: true},
				}},
			},
			wantErr: "unknown child entity",
		},
		{
			name: "connectOne without refKey",
			descriptors: map[string]Descriptor{
				"X": {Query: "allXs", RefKey: "ref", Transforms: map[string]Transform{
					"f": {Kind: TransformConnectOne, List: "allYs"},
				}},
			},
			wantErr: "requires list and refKey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descriptors)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTransformKindString(t *testing.T) {
	assert.Equal(t, "connectMany", TransformConnectMany.String())
	assert.Equal(t, "alwaysTrue", TransformAlwaysTrue.String())
	assert.Contains(t, TransformKind(42).String(), "42")
}
