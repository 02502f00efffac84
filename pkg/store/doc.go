// Package store provides the record store gateway: a thin query/mutation
// facade over the graph-queryable system of record.
//
// # Overview
//
// All portal state (organizations, gateway services, access requests,
// activities, ...) lives in an external graph-queryable store. This package
// wraps its execution endpoint behind the Executor interface and exposes
// typed lookup/create/update/remove operations on top of it.
//
// # Trust boundary
//
// Reconciliation and workflow operations are internal trusted-system
// operations and bypass field-level access control. The elevated context is
// produced by a single factory:
//
//	ctx = store.SystemContext(ctx)
//	record, err := gw.Lookup(ctx, "allOrganizations", "extForeignKey", id, fields)
//
// Handlers never construct the elevated marker themselves.
package store
