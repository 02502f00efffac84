package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gantry/pkg/gateway"
	"github.com/platinummonkey/gantry/pkg/store"
)

// scriptedExec routes by a substring of the query document and records every
// request it sees.
type scriptedExec struct {
	responses map[string]*store.Result
	requests  []store.Request
	system    []bool
}

func (e *scriptedExec) Execute(ctx context.Context, req store.Request) (*store.Result, error) {
	e.requests = append(e.requests, req)
	e.system = append(e.system, store.IsSystemContext(ctx))
	for key, res := range e.responses {
		if strings.Contains(req.Query, key) {
			return res, nil
		}
	}
	return &store.Result{Data: map[string]json.RawMessage{}}, nil
}

func result(key, payload string) *store.Result {
	return &store.Result{Data: map[string]json.RawMessage{key: json.RawMessage(payload)}}
}

func newTestStore(responses map[string]*store.Result) (*Store, *scriptedExec) {
	exec := &scriptedExec{responses: responses}
	return NewStore(store.NewGateway(exec, nil), nil), exec
}

func TestGetAccessRequestDecodes(t *testing.T) {
	st, _ := newTestStore(map[string]*store.Result{
		"GetAccessRequest": result("allAccessRequests", `[{
			"id": "req-1",
			"name": "access to sample",
			"isApproved": true,
			"controls": "{\"roles\":[\"viewer\"]}",
			"requestor": {"id": "u1", "username": "jdoe"},
			"application": {"id": "app-1", "appId": "APP100"},
			"productEnvironment": {
				"id": "env-1",
				"appId": "ENV200",
				"name": "prod",
				"flow": "client-credentials",
				"credentialIssuer": {"id": "iss-1"},
				"product": {"namespace": "health"}
			},
			"serviceAccess": {
				"id": "sa-1",
				"name": "grant",
				"active": true,
				"consumer": {"id": "gc-1", "username": "app100-env200", "extForeignKey": "kc-1"}
			}
		}]`),
	})

	req, err := st.GetAccessRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.True(t, req.IsApproved)
	assert.Equal(t, "jdoe", req.Requestor.Username)
	assert.Equal(t, "health", req.ProductEnvironment.Namespace())
	assert.Equal(t, "iss-1", req.ProductEnvironment.CredentialIssuer.ID)
	assert.Equal(t, "kc-1", req.ServiceAccess.Consumer.ExtForeignKey)
}

func TestGetAccessRequestMissing(t *testing.T) {
	st, _ := newTestStore(map[string]*store.Result{
		"GetAccessRequest": result("allAccessRequests", `[]`),
	})
	req, err := st.GetAccessRequest(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestMarkRequestIssuedRunsElevated(t *testing.T) {
	st, exec := newTestStore(map[string]*store.Result{
		"MarkRequestIssued": result("updateAccessRequest", `{"id":"req-1"}`),
	})

	require.NoError(t, st.MarkRequestIssued(context.Background(), "req-1", true))
	require.Len(t, exec.requests, 1)
	assert.Equal(t, map[string]interface{}{"requestId": "req-1", "complete": true}, exec.requests[0].Variables)
	assert.True(t, exec.system[0], "issuance flags are access controlled, mutation must run elevated")
}

func TestCreateServiceAccessConnects(t *testing.T) {
	st, exec := newTestStore(map[string]*store.Result{
		"createServiceAccess": result("createServiceAccess", `{"id":"sa-1"}`),
	})

	id, err := st.CreateServiceAccess(context.Background(), ServiceAccessInput{
		Name:          "app100-env200",
		Flow:          FlowClientCredentials,
		Active:        true,
		ConsumerType:  "client",
		ConsumerID:    "gc-1",
		EnvironmentID: "env-1",
		ApplicationID: "app-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sa-1", id)

	require.Len(t, exec.requests, 1)
	data := exec.requests[0].Variables["data"].(map[string]interface{})
	assert.Equal(t, "app100-env200", data["name"])
	assert.Equal(t,
		map[string]interface{}{"connect": map[string]interface{}{"id": "env-1"}},
		data["productEnvironment"])
	assert.Equal(t,
		map[string]interface{}{"connect": map[string]interface{}{"id": "gc-1"}},
		data["consumer"])
	assert.True(t, exec.system[0])
}

func TestUpsertGatewayConsumer(t *testing.T) {
	st, exec := newTestStore(map[string]*store.Result{
		"allGatewayConsumers":   result("allGatewayConsumers", `[]`),
		"createGatewayConsumer": result("createGatewayConsumer", `{"id":"gc-1"}`),
	})

	id, err := st.UpsertGatewayConsumer(context.Background(), &gateway.Consumer{
		ID:       "kc-uuid-1",
		Username: "app100-env200",
		CustomID: "custom-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "gc-1", id)
	require.Len(t, exec.requests, 2, "miss on lookup, then create")
}

func TestUpsertGatewayConsumerExisting(t *testing.T) {
	st, exec := newTestStore(map[string]*store.Result{
		"allGatewayConsumers": result("allGatewayConsumers", `[{"id":"gc-7","username":"app100-env200"}]`),
	})

	id, err := st.UpsertGatewayConsumer(context.Background(), &gateway.Consumer{ID: "kc-uuid-1", Username: "app100-env200"})
	require.NoError(t, err)
	assert.Equal(t, "gc-7", id)
	require.Len(t, exec.requests, 1, "existing record short-circuits the create")
}

func TestListServiceAccessesByEnvironment(t *testing.T) {
	st, exec := newTestStore(map[string]*store.Result{
		"GetServiceAccessesByEnvironment": result("allServiceAccesses", `[
			{"id":"sa-1","name":"a","active":true},
			{"id":"sa-2","name":"b","active":false}
		]`),
	})

	accesses, err := st.ListServiceAccessesByEnvironment(context.Background(), "health", "env-1")
	require.NoError(t, err)
	require.Len(t, accesses, 2)
	assert.Equal(t, "sa-1", accesses[0].ID)
	assert.Equal(t, map[string]interface{}{"ns": "health", "envId": "env-1"}, exec.requests[0].Variables)
}

func TestListNamespaceNames(t *testing.T) {
	st, _ := newTestStore(map[string]*store.Result{
		"Namespaces": result("allNamespaces", `[{"name":"health"},{"name":"transport"}]`),
	})

	names, err := st.ListNamespaceNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"health", "transport"}, names)
}

func TestDeleteBatchesSkipEmpty(t *testing.T) {
	st, exec := newTestStore(nil)
	require.NoError(t, st.DeleteServiceAccesses(context.Background(), nil))
	require.NoError(t, st.DeleteAccessRequests(context.Background(), nil))
	assert.Empty(t, exec.requests, "empty id lists never reach the store")
}

func TestQueryRejected(t *testing.T) {
	st, _ := newTestStore(map[string]*store.Result{
		"GetAccessRequest": {Errors: []store.ResultError{{Message: "access denied"}}},
	})
	_, err := st.GetAccessRequest(context.Background(), "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
