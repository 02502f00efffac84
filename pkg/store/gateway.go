package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Record is a stored entity as returned by a lookup. Every record carries an
// "id" field holding the store-internal identifier.
type Record map[string]interface{}

// ID returns the store-internal identifier of the record.
func (r Record) ID() string {
	s, _ := r["id"].(string)
	return s
}

// String returns the named field as a string, or "" if absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns the named field as a bool, or false if absent.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// MultiplicityError indicates a refKey lookup matched more than one record.
// refKey values are unique within a type, so this is an invariant breach in
// the stored data, not a recoverable condition.
type MultiplicityError struct {
	Query  string
	RefKey string
	Value  string
	Count  int
}

func (e *MultiplicityError) Error() string {
	return fmt.Sprintf("expecting zero or one rows for %s where %s=%s, got %d", e.Query, e.RefKey, e.Value, e.Count)
}

// RejectedError indicates the store rejected a mutation. Callers treat it as
// an operation failure, not a transport fault.
type RejectedError struct {
	Operation string
	Entity    string
	Messages  []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("store rejected %s %s: %s", e.Operation, e.Entity, strings.Join(e.Messages, "; "))
}

// IsRejected reports whether err is a store-rejected mutation.
func IsRejected(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}

// Gateway is the query/mutation facade over the store executor.
type Gateway struct {
	exec Executor
	log  *logrus.Entry
}

// NewGateway creates a gateway over the given executor.
func NewGateway(exec Executor, log *logrus.Logger) *Gateway {
	if log == nil {
		log = logrus.New()
	}
	return &Gateway{
		exec: exec,
		log:  log.WithField("component", "store"),
	}
}

// Executor returns the underlying executor for callers that build their own
// query documents.
func (g *Gateway) Executor() Executor {
	return g.exec
}

// Lookup resolves a single record by its external reference key. It returns
// (nil, nil) when no record matches, and a MultiplicityError when more than
// one does.
func (g *Gateway) Lookup(ctx context.Context, query, refKey, externalID string, fields []string) (Record, error) {
	selection := "id"
	if len(fields) > 0 {
		selection = "id, " + strings.Join(fields, ", ")
	}
	doc := fmt.Sprintf(`query($id: String) { %s(where: { %s: $id }) { %s } }`, query, refKey, selection)

	result, err := g.exec.Execute(SystemContext(ctx), Request{
		Query:     doc,
		Variables: map[string]interface{}{"id": externalID},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s by %s failed: %w", query, refKey, err)
	}
	if result.Rejected() {
		return nil, fmt.Errorf("lookup %s by %s rejected: %s", query, refKey, result.Errors[0].Message)
	}

	var rows []Record
	if raw, ok := result.Data[query]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode %s rows: %w", query, err)
		}
	}

	g.log.WithFields(logrus.Fields{"query": query, "refKey": refKey, "id": externalID, "rows": len(rows)}).Debug("lookup")

	if len(rows) > 1 {
		return nil, &MultiplicityError{Query: query, RefKey: refKey, Value: externalID, Count: len(rows)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Create inserts a new record and returns its store-internal ID.
func (g *Gateway) Create(ctx context.Context, entity string, data map[string]interface{}) (string, error) {
	doc := fmt.Sprintf(`mutation($data: %sCreateInput) { create%s(data: $data) { id } }`, entity, entity)
	return g.mutate(ctx, "create", entity, doc, map[string]interface{}{"data": data})
}

// Update mutates an existing record by its internal ID.
func (g *Gateway) Update(ctx context.Context, entity, id string, data map[string]interface{}) (string, error) {
	doc := fmt.Sprintf(`mutation($id: ID!, $data: %sUpdateInput) { update%s(id: $id, data: $data) { id } }`, entity, entity)
	return g.mutate(ctx, "update", entity, doc, map[string]interface{}{"id": id, "data": data})
}

// Remove deletes a record by its internal ID.
func (g *Gateway) Remove(ctx context.Context, entity, id string) (string, error) {
	doc := fmt.Sprintf(`mutation($id: ID!) { delete%s(id: $id) { id } }`, entity)
	return g.mutate(ctx, "delete", entity, doc, map[string]interface{}{"id": id})
}

func (g *Gateway) mutate(ctx context.Context, op, entity, doc string, vars map[string]interface{}) (string, error) {
	result, err := g.exec.Execute(SystemContext(ctx), Request{Query: doc, Variables: vars})
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w", op, entity, err)
	}
	if result.Rejected() {
		messages := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			messages = append(messages, e.Message)
		}
		g.log.WithFields(logrus.Fields{"op": op, "entity": entity}).WithField("errors", messages).Warn("store rejected mutation")
		return "", &RejectedError{Operation: op, Entity: entity, Messages: messages}
	}

	var row struct {
		ID string `json:"id"`
	}
	key := op + entity
	raw, ok := result.Data[key]
	if !ok {
		return "", fmt.Errorf("%s %s: missing %q in store response", op, entity, key)
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return "", fmt.Errorf("%s %s: failed to decode response: %w", op, entity, err)
	}
	return row.ID, nil
}
