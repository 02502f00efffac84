package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/gantry/pkg/store"
)

// ResolutionError indicates a referenced record could not be resolved during
// a connectMany transform. Partial relation membership is not permitted, so
// the whole sync aborts.
type ResolutionError struct {
	List   string
	RefKey string
	Value  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to find %s in %s by %s", e.Value, e.List, e.RefKey)
}

// dot walks a dotted path through nested objects, returning nil when any
// segment is absent.
func dot(value interface{}, path string) interface{} {
	current := value
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// sourceKey returns the input field the transform reads: the Key override
// when set, the target field otherwise.
func sourceKey(tr Transform, fieldKey string) string {
	if tr.Key != "" {
		return tr.Key
	}
	return fieldKey
}

// connectFragment is the relation mutation emitted by connect transforms.
func connectFragment(ids []string) map[string]interface{} {
	fragment := map[string]interface{}{"disconnectAll": true}
	if len(ids) > 0 {
		connect := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			connect = append(connect, map[string]interface{}{"id": id})
		}
		fragment["connect"] = connect
	}
	return fragment
}

// relationIDs extracts the member IDs of a stored relation field, which is
// either a single {id} object or a list of them.
func relationIDs(value interface{}) []string {
	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return []string{id}
		}
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, element := range v {
			if obj, ok := element.(map[string]interface{}); ok {
				if id, ok := obj["id"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids
	}
	return nil
}

// relationUnchanged reports whether the stored relation already has exactly
// the resolved membership, so the mutation can omit the field.
func relationUnchanged(current store.Record, fieldKey string, ids []string) bool {
	if current == nil {
		return false
	}
	stored := relationIDs(current[fieldKey])
	if len(stored) != len(ids) {
		return false
	}
	members := make(map[string]bool, len(stored))
	for _, id := range stored {
		members[id] = true
	}
	for _, id := range ids {
		if !members[id] {
			return false
		}
	}
	return true
}

// applyTransform evaluates one transform against the current record and the
// feed payload, returning the mutation fragment for the field or nil when
// the field should be omitted from the mutation.
func (e *Engine) applyTransform(ctx context.Context, tr Transform, current store.Record, payload map[string]interface{}, fieldKey string) (interface{}, error) {
	switch tr.Kind {
	case TransformToString:
		return stringifyTransform(current, payload, fieldKey, false), nil

	case TransformToStringDefaultArray:
		return stringifyTransform(current, payload, fieldKey, true), nil

	case TransformMapNamespace:
		return namespaceFromTags(current, payload, fieldKey), nil

	case TransformConnectExclusiveList:
		if _, present := payload[fieldKey]; !present {
			// the parent is only authoritative when the feed carries the list
			return nil, nil
		}
		ids, _ := payload[fieldKey+"_ids"].([]string)
		if relationUnchanged(current, fieldKey, ids) {
			return nil, nil
		}
		return connectFragment(ids), nil

	case TransformConnectMany:
		return e.connectMany(ctx, tr, current, payload, fieldKey)

	case TransformConnectOne:
		return e.connectOne(ctx, tr, current, payload, fieldKey)

	case TransformAlwaysTrue:
		return true, nil

	default:
		// unreachable: the registry rejects unknown kinds at construction
		return nil, fmt.Errorf("unknown transform kind %s", tr.Kind)
	}
}

// stringifyTransform serializes the input field, omitting it when absent or
// equal to the stored serialization. With defaultEmpty, an absent input
// yields "[]" unless the stored value is already the empty collection.
func stringifyTransform(current store.Record, payload map[string]interface{}, fieldKey string, defaultEmpty bool) interface{} {
	value, present := payload[fieldKey]
	if !present || value == nil {
		if !defaultEmpty {
			return nil
		}
		if current != nil && current.String(fieldKey) == "[]" {
			return nil
		}
		return "[]"
	}

	serialized, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	if current != nil && current.String(fieldKey) == string(serialized) {
		return nil
	}
	return string(serialized)
}

// namespaceFromTags extracts the namespace token from the first tag of the
// form "ns.<token>" with no further dot.
func namespaceFromTags(current store.Record, payload map[string]interface{}, fieldKey string) interface{} {
	tags, ok := payload["tags"].([]interface{})
	if !ok {
		return nil
	}
	for _, raw := range tags {
		tag, ok := raw.(string)
		if !ok || !strings.HasPrefix(tag, "ns.") {
			continue
		}
		token := tag[len("ns."):]
		if strings.Contains(token, ".") {
			continue
		}
		if current != nil && current.String(fieldKey) == token {
			return nil
		}
		return token
	}
	return nil
}

func (e *Engine) connectMany(ctx context.Context, tr Transform, current store.Record, payload map[string]interface{}, fieldKey string) (interface{}, error) {
	raw := dot(payload, sourceKey(tr, fieldKey))
	if raw == nil {
		return nil, nil
	}
	elements, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %s: expected a list of references", fieldKey)
	}

	ids := make([]string, 0, len(elements))
	for _, element := range elements {
		value := fmt.Sprintf("%v", element)
		record, err := e.store.Lookup(ctx, tr.List, tr.RefKey, value, nil)
		if err != nil {
			return nil, err
		}
		if record == nil {
			e.log.WithField("list", tr.List).WithField("refKey", tr.RefKey).Warnf("lookup failed for %s", value)
			return nil, &ResolutionError{List: tr.List, RefKey: tr.RefKey, Value: value}
		}
		ids = append(ids, record.ID())
	}
	if relationUnchanged(current, fieldKey, ids) {
		return nil, nil
	}
	return connectFragment(ids), nil
}

func (e *Engine) connectOne(ctx context.Context, tr Transform, current store.Record, payload map[string]interface{}, fieldKey string) (interface{}, error) {
	raw := dot(payload, sourceKey(tr, fieldKey))
	if raw == nil {
		return nil, nil
	}

	value := fmt.Sprintf("%v", raw)
	record, err := e.store.Lookup(ctx, tr.List, tr.RefKey, value, nil)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// single-reference misses degrade to clearing the relation
		e.log.WithField("list", tr.List).WithField("refKey", tr.RefKey).Warnf("lookup failed for %s, clearing relation", value)
		return map[string]interface{}{"disconnectAll": true}, nil
	}
	if relationUnchanged(current, fieldKey, []string{record.ID()}) {
		return nil, nil
	}
	return map[string]interface{}{"connect": map[string]interface{}{"id": record.ID()}}, nil
}
