package feed

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/observability"
	"github.com/platinummonkey/gantry/pkg/store"
)

// Store is the record store surface the engine reconciles against.
// *store.Gateway satisfies it; tests use in-memory fakes.
type Store interface {
	Lookup(ctx context.Context, query, refKey, externalID string, fields []string) (store.Record, error)
	Create(ctx context.Context, entity string, data map[string]interface{}) (string, error)
	Update(ctx context.Context, entity, id string, data map[string]interface{}) (string, error)
	Remove(ctx context.Context, entity, id string) (string, error)
}

// Sync result discriminators.
const (
	ResultCreated      = "created"
	ResultUpdated      = "updated"
	ResultNoChange     = "no-change"
	ResultCreateFailed = "create-failed"
	ResultUpdateFailed = "update-failed"
	ResultDeleted      = "deleted"
	ResultNotFound     = "not-found"
)

// Result is the outcome of a sync or delete call, returned verbatim to feed
// callers.
type Result struct {
	Status int    `json:"status"`
	Result string `json:"result"`
	ID     string `json:"id,omitempty"`
}

// UnknownEntityError indicates a sync was requested for an entity type with
// no descriptor.
type UnknownEntityError struct {
	Entity string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Entity)
}

// ChildOnlyError indicates a top-level sync of an entity that must only be
// reconciled as part of a parent cascade.
type ChildOnlyError struct {
	Entity string
}

func (e *ChildOnlyError) Error() string {
	return fmt.Sprintf("entity %s is only synced as part of a parent", e.Entity)
}

// Engine reconciles external feed payloads against the record store.
type Engine struct {
	registry *Registry
	store    Store
	metrics  *observability.Metrics
	log      *logrus.Entry
}

// NewEngine creates an engine over the given registry and store. metrics may
// be nil.
func NewEngine(registry *Registry, st Store, metrics *observability.Metrics, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		registry: registry,
		store:    st,
		metrics:  metrics,
		log:      log.WithField("component", "feed"),
	}
}

// Registry returns the engine's descriptor registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Sync reconciles one entity payload: create when absent, minimal update when
// present, no-change when nothing differs.
func (e *Engine) Sync(ctx context.Context, entity, externalID string, payload map[string]interface{}) (*Result, error) {
	started := time.Now()
	result, err := e.sync(ctx, entity, externalID, payload, false)
	if err == nil {
		e.metrics.ObserveFeedSync(entity, result.Result, time.Since(started))
	}
	return result, err
}

// Delete removes the record identified by the external ID, reporting
// not-found when no record matches.
func (e *Engine) Delete(ctx context.Context, entity, externalID string) (*Result, error) {
	md, ok := e.registry.Get(entity)
	if !ok {
		return nil, &UnknownEntityError{Entity: entity}
	}

	record, err := e.store.Lookup(ctx, md.Query, md.RefKey, externalID, e.lookupFields(md))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &Result{Status: 200, Result: ResultNotFound}, nil
	}

	if _, err := e.store.Remove(ctx, entity, record.ID()); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"entity": entity, "id": externalID}).Info("deleted")
	return &Result{Status: 200, Result: ResultDeleted, ID: record.ID()}, nil
}

func (e *Engine) sync(ctx context.Context, entity, externalID string, payload map[string]interface{}, asChild bool) (*Result, error) {
	md, ok := e.registry.Get(entity)
	if !ok {
		return nil, &UnknownEntityError{Entity: entity}
	}
	if md.ChildOnly && !asChild {
		return nil, &ChildOnlyError{Entity: entity}
	}

	current, err := e.store.Lookup(ctx, md.Query, md.RefKey, externalID, e.lookupFields(md))
	if err != nil {
		return nil, err
	}

	if current == nil {
		return e.create(ctx, entity, md, externalID, payload)
	}
	return e.update(ctx, entity, md, current, payload)
}

func (e *Engine) create(ctx context.Context, entity string, md Descriptor, externalID string, payload map[string]interface{}) (*Result, error) {
	data := make(map[string]interface{})
	for _, field := range md.Sync {
		if value, present := payload[field]; present {
			data[field] = value
		}
	}

	if err := e.applyTransforms(ctx, md, nil, payload, data); err != nil {
		return nil, err
	}
	data[md.RefKey] = externalID

	id, err := e.store.Create(ctx, entity, data)
	if err != nil {
		if store.IsRejected(err) {
			return &Result{Status: 400, Result: ResultCreateFailed}, nil
		}
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"entity": entity, "id": externalID}).Info("created")
	return &Result{Status: 200, Result: ResultCreated, ID: id}, nil
}

func (e *Engine) update(ctx context.Context, entity string, md Descriptor, current store.Record, payload map[string]interface{}) (*Result, error) {
	data := make(map[string]interface{})
	for _, field := range md.Sync {
		if _, isTransform := md.Transforms[field]; isTransform {
			continue
		}
		value, present := payload[field]
		if present && !reflect.DeepEqual(value, current[field]) {
			data[field] = value
		}
	}

	if err := e.applyTransforms(ctx, md, current, payload, data); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return &Result{Status: 200, Result: ResultNoChange, ID: current.ID()}, nil
	}

	id, err := e.store.Update(ctx, entity, current.ID(), data)
	if err != nil {
		if store.IsRejected(err) {
			return &Result{Status: 400, Result: ResultUpdateFailed}, nil
		}
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"entity": entity, "id": current.ID(), "fields": len(data)}).Info("updated")
	return &Result{Status: 200, Result: ResultUpdated, ID: id}, nil
}

// applyTransforms evaluates every descriptor transform, syncing SyncFirst
// children before the transform reads their resolved IDs, and writes each
// non-nil fragment into the mutation payload.
func (e *Engine) applyTransforms(ctx context.Context, md Descriptor, current store.Record, payload, data map[string]interface{}) error {
	for _, field := range md.transformFields() {
		tr := md.Transforms[field]

		// on update, transforms decide their own no-op; a raw scalar copy of
		// the field must not end up in the mutation. On create the raw value
		// stands unless the transform produces a fragment.
		if current != nil {
			delete(data, field)
		}

		if tr.SyncFirst {
			ids, err := e.syncChildList(ctx, tr.List, payload[field])
			if err != nil {
				return err
			}
			payload[field+"_ids"] = ids
		}

		fragment, err := e.applyTransform(ctx, tr, current, payload, field)
		if err != nil {
			return err
		}
		if fragment != nil {
			data[field] = fragment
		}
	}
	return nil
}

// syncChildList reconciles each child payload sequentially in input order and
// returns the store-internal IDs the parent mutation will reference. A child
// that fails to reconcile aborts the parent sync so the parent never
// references a dangling record.
func (e *Engine) syncChildList(ctx context.Context, entity string, raw interface{}) ([]string, error) {
	ids := []string{}
	if raw == nil {
		return ids, nil
	}
	children, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of %s child records", entity)
	}

	for _, element := range children {
		child, ok := element.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a %s child object", entity)
		}
		childID, _ := child["id"].(string)
		if childID == "" {
			return nil, fmt.Errorf("%s child record is missing an id", entity)
		}

		result, err := e.sync(ctx, entity, childID, child, true)
		if err != nil {
			return nil, err
		}
		if result.Status != 200 {
			return nil, fmt.Errorf("failed to sync child %s %s: %s", entity, childID, result.Result)
		}
		ids = append(ids, result.ID)
	}
	return ids, nil
}

// lookupFields builds the selection used to load the current record: scalar
// sync fields as-is, relation fields with an id subselection.
func (e *Engine) lookupFields(md Descriptor) []string {
	fields := make([]string, 0, len(md.Sync))
	for _, field := range md.Sync {
		if tr, ok := md.Transforms[field]; ok {
			switch tr.Kind {
			case TransformConnectExclusiveList, TransformConnectMany, TransformConnectOne:
				fields = append(fields, field+" { id }")
				continue
			}
		}
		fields = append(fields, field)
	}
	return fields
}
