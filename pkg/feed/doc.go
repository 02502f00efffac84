// Package feed implements the reconciliation engine that ingests external
// system-of-record data into the portal store.
//
// # Overview
//
// Each syncable entity type has a Descriptor naming its read query, its
// external reference key, the fields eligible for reconciliation, and the
// field transforms that turn raw feed input into store mutation fragments.
// Descriptors are collected into an immutable Registry built at startup.
//
// The Engine performs an idempotent create-or-update per call:
//
//	result, err := engine.Sync(ctx, "Organization", "org-1", payload)
//	// result.Result is one of created, updated, no-change,
//	// create-failed, update-failed
//
// Fields whose values match the stored record are never included in the
// mutation, and an empty computed mutation short-circuits to no-change
// without touching the store. Child entities declared with SyncFirst are
// fully reconciled, sequentially in input order, before the parent mutation
// references them.
package feed
