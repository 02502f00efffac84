// Package activity records workflow actions for traceability. One record is
// created per workflow invocation in the pending state and transitioned to a
// terminal result exactly once; records are never deleted.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/store"
)

// Result is the outcome state of a recorded activity.
type Result string

const (
	ResultPending Result = "pending"
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Store is the mutation surface the recorder writes through.
// *store.Gateway satisfies it.
type Store interface {
	Create(ctx context.Context, entity string, data map[string]interface{}) (string, error)
	Update(ctx context.Context, entity, id string, data map[string]interface{}) (string, error)
}

// Entry describes one workflow action to record.
type Entry struct {
	Type      string
	Name      string
	Action    string
	Result    Result
	Message   string
	Namespace string
	Actor     string

	// Blob, when non-nil, is serialized and attached to the activity for
	// later inspection.
	Blob interface{}
}

// Activity is a created audit record.
type Activity struct {
	ID    string
	RefID string
}

// Recorder writes activity records through the store gateway under the
// elevated system context.
type Recorder struct {
	store Store
	log   *logrus.Entry
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(st Store, log *logrus.Logger) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	return &Recorder{
		store: st,
		log:   log.WithField("component", "activity"),
	}
}

// Record creates an activity record, attaching the blob payload when present.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*Activity, error) {
	ctx = store.SystemContext(ctx)

	refID := uuid.NewString()
	data := map[string]interface{}{
		"extRefId": refID,
		"refId":    refID,
		"type":     entry.Type,
		"name":     entry.Name,
		"action":   entry.Action,
		"result":   string(entry.Result),
	}
	if entry.Message != "" {
		data["message"] = entry.Message
	}
	if entry.Namespace != "" {
		data["namespace"] = entry.Namespace
	}
	if entry.Actor != "" {
		data["actor"] = map[string]interface{}{
			"connect": map[string]interface{}{"username": entry.Actor},
		}
	}

	if entry.Blob != nil {
		blobID, err := r.storeBlob(ctx, refID, entry.Blob)
		if err != nil {
			return nil, err
		}
		data["blob"] = map[string]interface{}{
			"connect": map[string]interface{}{"id": blobID},
		}
	}

	id, err := r.store.Create(ctx, "Activity", data)
	if err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"action":    entry.Action,
		"type":      entry.Type,
		"name":      entry.Name,
		"result":    entry.Result,
		"namespace": entry.Namespace,
	}).Debug("recorded activity")

	return &Activity{ID: id, RefID: refID}, nil
}

// Update transitions a pending activity to its terminal result. The result
// must be terminal; there is no path back to pending and no retry.
func (r *Recorder) Update(ctx context.Context, activityID string, result Result, message string) error {
	if result == ResultPending {
		return fmt.Errorf("activity %s: cannot transition back to pending", activityID)
	}

	data := map[string]interface{}{"result": string(result)}
	if message != "" {
		data["message"] = message
	}
	if _, err := r.store.Update(store.SystemContext(ctx), "Activity", activityID, data); err != nil {
		return fmt.Errorf("failed to update activity %s: %w", activityID, err)
	}
	return nil
}

func (r *Recorder) storeBlob(ctx context.Context, ref string, payload interface{}) (string, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize activity blob: %w", err)
	}
	id, err := r.store.Create(ctx, "Blob", map[string]interface{}{
		"ref":  ref,
		"type": "json",
		"blob": string(serialized),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store activity blob: %w", err)
	}
	return id, nil
}
