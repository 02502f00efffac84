package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdmin is an in-memory gateway admin API.
type fakeAdmin struct {
	*httptest.Server
	consumers map[string]*Consumer // keyed by username
	acls      map[string][]ACLEntry
	plugins   map[string][]ConsumerPlugin
	keys      map[string][]KeyAuthCredential
}

func newFakeAdmin(t *testing.T) *fakeAdmin {
	t.Helper()
	f := &fakeAdmin{
		consumers: make(map[string]*Consumer),
		acls:      make(map[string][]ACLEntry),
		plugins:   make(map[string][]ConsumerPlugin),
		keys:      make(map[string][]KeyAuthCredential),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeAdmin) find(idOrUsername string) *Consumer {
	if c, ok := f.consumers[idOrUsername]; ok {
		return c
	}
	for _, c := range f.consumers {
		if c.ID == idOrUsername {
			return c
		}
	}
	return nil
}

func (f *fakeAdmin) handle(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	switch {
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "consumers":
		var body Consumer
		json.NewDecoder(r.Body).Decode(&body)
		if _, exists := f.consumers[body.Username]; exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		body.ID = uuid.New().String()
		f.consumers[body.Username] = &body
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&body)
	case len(parts) == 2 && parts[0] == "consumers":
		consumer := f.find(parts[1])
		if consumer == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(consumer)
		case http.MethodDelete:
			delete(f.consumers, consumer.Username)
			w.WriteHeader(http.StatusNoContent)
		}
	case len(parts) >= 3 && parts[0] == "consumers" && parts[2] == "acls":
		f.handleACLs(w, r, parts)
	case len(parts) >= 3 && parts[0] == "consumers" && parts[2] == "plugins":
		f.handlePlugins(w, r, parts)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "key-auth":
		var body KeyAuthCredential
		json.NewDecoder(r.Body).Decode(&body)
		body.ID = uuid.New().String()
		f.keys[parts[1]] = append(f.keys[parts[1]], body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAdmin) handleACLs(w http.ResponseWriter, r *http.Request, parts []string) {
	consumerID := parts[1]
	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{"data": f.acls[consumerID]})
	case r.Method == http.MethodPost:
		var body ACLEntry
		json.NewDecoder(r.Body).Decode(&body)
		for _, entry := range f.acls[consumerID] {
			if entry.Group == body.Group {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		body.ID = uuid.New().String()
		f.acls[consumerID] = append(f.acls[consumerID], body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&body)
	case r.Method == http.MethodDelete && len(parts) == 4:
		group := parts[3]
		kept := f.acls[consumerID][:0]
		found := false
		for _, entry := range f.acls[consumerID] {
			if entry.Group == group {
				found = true
				continue
			}
			kept = append(kept, entry)
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.acls[consumerID] = kept
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAdmin) handlePlugins(w http.ResponseWriter, r *http.Request, parts []string) {
	consumerID := parts[1]
	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{"data": f.plugins[consumerID]})
	case r.Method == http.MethodPost:
		var body ConsumerPlugin
		json.NewDecoder(r.Body).Decode(&body)
		body.ID = uuid.New().String()
		f.plugins[consumerID] = append(f.plugins[consumerID], body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&body)
	case r.Method == http.MethodPatch && len(parts) == 4:
		var body ConsumerPlugin
		json.NewDecoder(r.Body).Decode(&body)
		for i, plugin := range f.plugins[consumerID] {
			if plugin.ID == parts[3] {
				body.ID = plugin.ID
				f.plugins[consumerID][i] = body
				json.NewEncoder(w).Encode(&body)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

func TestCreateOrGetConsumer(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)
	ctx := context.Background()

	created, err := client.CreateOrGetConsumer(ctx, "sample-app@{ns}")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.CustomID)

	again, err := client.CreateOrGetConsumer(ctx, "sample-app@{ns}")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "conflict on create must resolve to the existing consumer")
	assert.Len(t, admin.consumers, 1)
}

func TestGetConsumerMissing(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)

	consumer, err := client.GetConsumer(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

func TestDeleteConsumerIdempotent(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)
	ctx := context.Background()

	consumer, err := client.CreateOrGetConsumer(ctx, "sample-app")
	require.NoError(t, err)

	require.NoError(t, client.DeleteConsumer(ctx, consumer.ID))
	require.NoError(t, client.DeleteConsumer(ctx, consumer.ID))
	assert.Empty(t, admin.consumers)
}

func TestACLMembership(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)
	ctx := context.Background()

	require.NoError(t, client.AddToACL(ctx, "c1", "ns.sample"))
	// repeat add hits 409 and is absorbed
	require.NoError(t, client.AddToACL(ctx, "c1", "ns.sample"))

	entries, err := client.ListACLs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ns.sample", entries[0].Group)

	require.NoError(t, client.RemoveFromACL(ctx, "c1", "ns.sample"))
	require.NoError(t, client.RemoveFromACL(ctx, "c1", "ns.sample"))

	entries, err = client.ListACLs(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateKeyAuth(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)

	credential, err := client.CreateKeyAuth(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, credential.Key)
	assert.NotContains(t, credential.Key, "-")
}

func TestApplyPluginsUpsert(t *testing.T) {
	admin := newFakeAdmin(t)
	client := NewAdminClient(admin.URL, nil)
	ctx := context.Background()

	minute := 10
	require.NoError(t, client.ApplyPlugins(ctx, "c1", []ConsumerPlugin{
		{Name: "rate-limiting", Service: &Name{Name: "svc-a"}, Config: PluginConfig{Minute: &minute}},
	}))
	require.Len(t, admin.plugins["c1"], 1)
	firstID := admin.plugins["c1"][0].ID

	// same name+scope updates in place, new scope creates
	hour := 100
	require.NoError(t, client.ApplyPlugins(ctx, "c1", []ConsumerPlugin{
		{Name: "rate-limiting", Service: &Name{Name: "svc-a"}, Config: PluginConfig{Hour: &hour}},
		{Name: "ip-restriction", Service: &Name{Name: "svc-a"}, Config: PluginConfig{Allow: []string{"10.0.0.0/8"}}},
	}))
	require.Len(t, admin.plugins["c1"], 2)
	assert.Equal(t, firstID, admin.plugins["c1"][0].ID)
	require.NotNil(t, admin.plugins["c1"][0].Config.Hour)
	assert.Equal(t, 100, *admin.plugins["c1"][0].Config.Hour)
	assert.Nil(t, admin.plugins["c1"][0].Config.Minute)
}
