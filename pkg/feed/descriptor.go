package feed

import (
	"fmt"
	"sort"
)

// TransformKind identifies a field transform strategy. The set is closed:
// descriptors referencing an unknown kind fail registry construction, not a
// sync call.
type TransformKind int

const (
	// TransformToString serializes the input value, omitting the field when
	// absent or unchanged.
	TransformToString TransformKind = iota
	// TransformToStringDefaultArray is TransformToString, but an absent input
	// yields an empty-collection serialization so the field is never unset.
	TransformToStringDefaultArray
	// TransformMapNamespace derives a namespace token from a "ns.<token>" tag.
	TransformMapNamespace
	// TransformConnectExclusiveList replaces the entire membership of an
	// exclusively-owned one-to-many relation.
	TransformConnectExclusiveList
	// TransformConnectMany resolves a list of references; any unresolvable
	// element aborts the sync.
	TransformConnectMany
	// TransformConnectOne resolves a single reference; an unresolvable value
	// clears the relation instead of failing.
	TransformConnectOne
	// TransformAlwaysTrue forces the field to true on every sync.
	TransformAlwaysTrue
)

var transformKindNames = map[TransformKind]string{
	TransformToString:             "toString",
	TransformToStringDefaultArray: "toStringDefaultArray",
	TransformMapNamespace:         "mapNamespace",
	TransformConnectExclusiveList: "connectExclusiveList",
	TransformConnectMany:          "connectMany",
	TransformConnectOne:           "connectOne",
	TransformAlwaysTrue:           "alwaysTrue",
}

func (k TransformKind) String() string {
	if name, ok := transformKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TransformKind(%d)", int(k))
}

func (k TransformKind) valid() bool {
	_, ok := transformKindNames[k]
	return ok
}

// Transform describes how a single field is derived from feed input.
type Transform struct {
	Kind TransformKind

	// List names the referenced side for connect transforms: the registry
	// entity for SyncFirst child lists, or the read query for lookups.
	List string

	// RefKey is the field on the referenced type used for lookup resolution.
	RefKey string

	// Key overrides the source field path in the input payload. Dotted paths
	// descend into nested objects.
	Key string

	// SyncFirst reconciles referenced child records, depth-first, before the
	// parent mutation is built.
	SyncFirst bool
}

// Descriptor is the static sync metadata for one entity type.
type Descriptor struct {
	// Query is the read-all operation name on the store.
	Query string

	// RefKey holds the external system's unique identifier for this type.
	RefKey string

	// Sync lists the fields eligible for reconciliation.
	Sync []string

	// Transforms maps field names to their transform. Keys need not appear in
	// Sync; transforms are always re-evaluated on update.
	Transforms map[string]Transform

	// ChildOnly entities are only reconciled as part of a parent cascade.
	ChildOnly bool
}

// Registry is the immutable set of entity descriptors, built once at startup
// and injected into the engine.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry validates the descriptor table and returns a registry.
func NewRegistry(descriptors map[string]Descriptor) (*Registry, error) {
	for entity, md := range descriptors {
		if md.Query == "" {
			return nil, fmt.Errorf("descriptor %s: missing query", entity)
		}
		if md.RefKey == "" {
			return nil, fmt.Errorf("descriptor %s: missing refKey", entity)
		}
		for field, tr := range md.Transforms {
			if !tr.Kind.valid() {
				return nil, fmt.Errorf("descriptor %s: field %s references unknown transform kind %d", entity, field, int(tr.Kind))
			}
			switch tr.Kind {
			case TransformConnectExclusiveList:
				if !tr.SyncFirst {
					return nil, fmt.Errorf("descriptor %s: field %s: connectExclusiveList requires SyncFirst", entity, field)
				}
				if _, ok := descriptors[tr.List]; !ok {
					return nil, fmt.Errorf("descriptor %s: field %s references unknown child entity %q", entity, field, tr.List)
				}
			case TransformConnectMany, TransformConnectOne:
				if tr.List == "" || tr.RefKey == "" {
					return nil, fmt.Errorf("descriptor %s: field %s: connect transform requires list and refKey", entity, field)
				}
			}
		}
	}
	return &Registry{descriptors: descriptors}, nil
}

// Get returns the descriptor for an entity type.
func (r *Registry) Get(entity string) (Descriptor, bool) {
	md, ok := r.descriptors[entity]
	return md, ok
}

// Has reports whether the entity type is known.
func (r *Registry) Has(entity string) bool {
	_, ok := r.descriptors[entity]
	return ok
}

// Entities returns the known entity names in sorted order.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// transformFields returns the descriptor's transform field names in sorted
// order so sync evaluation is deterministic.
func (d Descriptor) transformFields() []string {
	fields := make([]string, 0, len(d.Transforms))
	for field := range d.Transforms {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// DefaultRegistry builds the descriptor table for the portal's system of
// record. It panics on an invalid table; the table is static and covered by
// tests, so a failure here is a programming error.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(map[string]Descriptor{
		"Organization": {
			Query:  "allOrganizations",
			RefKey: "extForeignKey",
			Sync:   []string{"name", "sector", "title", "tags", "description", "orgUnits", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags":     {Kind: TransformToString},
				"orgUnits": {Kind: TransformConnectExclusiveList, List: "OrganizationUnit", SyncFirst: true},
			},
		},
		"OrganizationUnit": {
			Query:  "allOrganizationUnits",
			RefKey: "extForeignKey",
			Sync:   []string{"name", "sector", "title", "tags", "description", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags": {Kind: TransformToStringDefaultArray},
			},
		},
		"Dataset": {
			Query:  "allDatasets",
			RefKey: "extForeignKey",
			Sync: []string{
				"name", "sector", "license_title", "security_class", "view_audience",
				"download_audience", "record_publish_date", "notes", "title",
				"organization", "organizationUnit", "isInCatalog", "tags",
				"extSource", "extRecordHash",
			},
			Transforms: map[string]Transform{
				"tags":             {Kind: TransformToString},
				"organization":     {Kind: TransformConnectOne, Key: "org", List: "allOrganizations", RefKey: "extForeignKey"},
				"organizationUnit": {Kind: TransformConnectOne, Key: "sub_org", List: "allOrganizationUnits", RefKey: "extForeignKey"},
				"isInCatalog":      {Kind: TransformAlwaysTrue},
			},
		},
		"Metric": {
			Query:  "allMetrics",
			RefKey: "name",
			Sync:   []string{"query", "day", "metric", "values"},
			Transforms: map[string]Transform{
				"metric":  {Kind: TransformToString},
				"values":  {Kind: TransformToString},
				"service": {Kind: TransformConnectOne, Key: "metric.service", List: "allGatewayServices", RefKey: "name"},
			},
		},
		"Alert": {
			Query:  "allAlerts",
			RefKey: "name",
			Sync:   []string{"name"},
		},
		"GatewayService": {
			Query:  "allGatewayServices",
			RefKey: "extForeignKey",
			Sync:   []string{"name", "namespace", "host", "tags", "plugins", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags":      {Kind: TransformToStringDefaultArray},
				"namespace": {Kind: TransformMapNamespace},
				"plugins":   {Kind: TransformConnectExclusiveList, List: "GatewayPlugin", SyncFirst: true},
			},
		},
		"GatewayGroup": {
			Query:  "allGatewayGroups",
			RefKey: "extForeignKey",
			Sync:   []string{"name", "namespace", "extSource", "extRecordHash"},
		},
		"GatewayRoute": {
			Query:  "allGatewayRoutes",
			RefKey: "extForeignKey",
			Sync:   []string{"name", "namespace", "methods", "paths", "hosts", "tags", "plugins", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags":      {Kind: TransformToStringDefaultArray},
				"methods":   {Kind: TransformToStringDefaultArray},
				"paths":     {Kind: TransformToStringDefaultArray},
				"hosts":     {Kind: TransformToStringDefaultArray},
				"namespace": {Kind: TransformMapNamespace},
				"service":   {Kind: TransformConnectOne, Key: "service.id", List: "allGatewayServices", RefKey: "extForeignKey"},
				"plugins":   {Kind: TransformConnectExclusiveList, List: "GatewayPlugin", SyncFirst: true},
			},
		},
		"GatewayPlugin": {
			ChildOnly: true,
			Query:     "allGatewayPlugins",
			RefKey:    "extForeignKey",
			Sync:      []string{"name", "tags", "config", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags":    {Kind: TransformToStringDefaultArray},
				"config":  {Kind: TransformToString},
				"service": {Kind: TransformConnectOne, Key: "service.id", List: "allGatewayServices", RefKey: "extForeignKey"},
				"route":   {Kind: TransformConnectOne, Key: "route.id", List: "allGatewayRoutes", RefKey: "extForeignKey"},
			},
		},
		"GatewayConsumer": {
			Query:  "allGatewayConsumers",
			RefKey: "extForeignKey",
			Sync:   []string{"username", "tags", "customId", "namespace", "aclGroups", "plugins", "extSource", "extRecordHash"},
			Transforms: map[string]Transform{
				"tags":      {Kind: TransformToStringDefaultArray},
				"aclGroups": {Kind: TransformToStringDefaultArray},
				"namespace": {Kind: TransformMapNamespace},
				"plugins":   {Kind: TransformConnectExclusiveList, List: "GatewayPlugin", SyncFirst: true},
			},
		},
		"ServiceAccess": {
			Query:  "allServiceAccesses",
			RefKey: "name",
			Sync:   []string{"active", "aclEnabled", "consumerType"},
			Transforms: map[string]Transform{
				"application":        {Kind: TransformConnectOne, List: "allApplications", RefKey: "appId"},
				"consumer":           {Kind: TransformConnectOne, List: "allGatewayConsumers", RefKey: "username"},
				"productEnvironment": {Kind: TransformConnectOne, List: "allEnvironments", RefKey: "appId"},
			},
		},
		"Application": {
			Query:  "allApplications",
			RefKey: "appId",
			Sync:   []string{"name", "description"},
			Transforms: map[string]Transform{
				"owner":            {Kind: TransformConnectOne, List: "allUsers", RefKey: "username"},
				"organization":     {Kind: TransformConnectOne, Key: "org", List: "allOrganizations", RefKey: "name"},
				"organizationUnit": {Kind: TransformConnectOne, Key: "sub_org", List: "allOrganizationUnits", RefKey: "name"},
			},
		},
		"Product": {
			Query:  "allProducts",
			RefKey: "appId",
			Sync:   []string{"name", "namespace"},
			Transforms: map[string]Transform{
				"dataset":      {Kind: TransformConnectOne, List: "allDatasets", RefKey: "name"},
				"environments": {Kind: TransformConnectExclusiveList, List: "Environment", SyncFirst: true},
			},
		},
		"Environment": {
			Query:  "allEnvironments",
			RefKey: "appId",
			Sync:   []string{"name", "active", "flow"},
			Transforms: map[string]Transform{
				"services":         {Kind: TransformConnectMany, List: "allGatewayServices", RefKey: "name"},
				"legal":            {Kind: TransformConnectOne, List: "allLegals", RefKey: "reference"},
				"credentialIssuer": {Kind: TransformConnectOne, List: "allCredentialIssuers", RefKey: "name"},
			},
		},
		"CredentialIssuer": {
			Query:  "allCredentialIssuers",
			RefKey: "name",
			Sync: []string{
				"name", "description", "flow", "clientRegistration", "mode", "authPlugin",
				"instruction", "oidcDiscoveryUrl", "initialAccessToken", "clientId",
				"clientSecret", "clientRoles", "availableScopes", "resourceType",
				"apiKeyName", "owner",
			},
			Transforms: map[string]Transform{
				"availableScopes": {Kind: TransformToStringDefaultArray},
				"clientRoles":     {Kind: TransformToStringDefaultArray},
				"owner":           {Kind: TransformConnectOne, List: "allUsers", RefKey: "username"},
			},
		},
		"Content": {
			Query:  "allContents",
			RefKey: "externalLink",
			Sync:   []string{"title", "description", "content", "githubRepository", "readme", "order", "isComplete", "tags"},
			Transforms: map[string]Transform{
				"tags": {Kind: TransformToStringDefaultArray},
			},
		},
		"Legal": {
			Query:  "allLegals",
			RefKey: "reference",
			Sync:   []string{"title", "link", "document", "version", "active"},
		},
		"Activity": {
			Query:  "allActivities",
			RefKey: "extRefId",
			Sync:   []string{"type", "name", "action", "result", "message", "refId", "namespace", "actor"},
			Transforms: map[string]Transform{
				"actor": {Kind: TransformConnectOne, List: "allUsers", RefKey: "username"},
				"blob":  {Kind: TransformConnectOne, List: "allBlobs", RefKey: "ref"},
			},
		},
		"User": {
			Query:  "allUsers",
			RefKey: "username",
			Sync:   []string{"name", "username", "email"},
		},
	})
	if err != nil {
		panic(err)
	}
	return registry
}
