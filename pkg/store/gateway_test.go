package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor returns canned results and records the requests it saw.
type scriptedExecutor struct {
	results  []*Result
	requests []Request
}

func (e *scriptedExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	e.requests = append(e.requests, req)
	if len(e.results) == 0 {
		return &Result{Data: map[string]json.RawMessage{}}, nil
	}
	r := e.results[0]
	e.results = e.results[1:]
	return r, nil
}

func rows(t *testing.T, query string, records ...Record) *Result {
	t.Helper()
	raw, err := json.Marshal(records)
	require.NoError(t, err)
	return &Result{Data: map[string]json.RawMessage{query: raw}}
}

func TestLookupNoMatch(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{rows(t, "allOrganizations")}}
	gw := NewGateway(exec, nil)

	rec, err := gw.Lookup(context.Background(), "allOrganizations", "extForeignKey", "org-1", []string{"name", "title"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.Len(t, exec.requests, 1)
	assert.Contains(t, exec.requests[0].Query, "allOrganizations(where: { extForeignKey: $id })")
	assert.Contains(t, exec.requests[0].Query, "id, name, title")
	assert.Equal(t, "org-1", exec.requests[0].Variables["id"])
}

func TestLookupSingleMatch(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{
		rows(t, "allOrganizations", Record{"id": "abc", "name": "sample-org"}),
	}}
	gw := NewGateway(exec, nil)

	rec, err := gw.Lookup(context.Background(), "allOrganizations", "extForeignKey", "org-1", nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "abc", rec.ID())
	assert.Equal(t, "sample-org", rec.String("name"))
}

func TestLookupMultiplicityViolation(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{
		rows(t, "allOrganizations", Record{"id": "a"}, Record{"id": "b"}),
	}}
	gw := NewGateway(exec, nil)

	_, err := gw.Lookup(context.Background(), "allOrganizations", "extForeignKey", "org-1", nil)
	require.Error(t, err)
	var merr *MultiplicityError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 2, merr.Count)
	assert.Contains(t, err.Error(), "zero or one rows")
}

func TestCreateReturnsID(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{
		{Data: map[string]json.RawMessage{"createOrganization": json.RawMessage(`{"id":"new-id"}`)}},
	}}
	gw := NewGateway(exec, nil)

	id, err := gw.Create(context.Background(), "Organization", map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	assert.Contains(t, exec.requests[0].Query, "createOrganization(data: $data)")
}

func TestMutationRejected(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{
		{Errors: []ResultError{{Message: "boom"}}},
	}}
	gw := NewGateway(exec, nil)

	_, err := gw.Update(context.Background(), "Organization", "abc", map[string]interface{}{"name": "x"})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestRemoveBuildsDeleteMutation(t *testing.T) {
	exec := &scriptedExecutor{results: []*Result{
		{Data: map[string]json.RawMessage{"deleteOrganization": json.RawMessage(`{"id":"abc"}`)}},
	}}
	gw := NewGateway(exec, nil)

	id, err := gw.Remove(context.Background(), "Organization", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Contains(t, exec.requests[0].Query, "deleteOrganization(id: $id)")
}

func TestSystemContextMarker(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsSystemContext(ctx))
	assert.True(t, IsSystemContext(SystemContext(ctx)))
}

func TestHTTPExecutorSendsElevatedHeader(t *testing.T) {
	var gotHeader string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Skip-Access-Control")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"allOrganizations":[]}}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, "sekret", 5*time.Second)
	result, err := exec.Execute(SystemContext(context.Background()), Request{Query: "query { allOrganizations { id } }"})
	require.NoError(t, err)
	assert.False(t, result.Rejected())
	assert.Equal(t, "true", gotHeader)
	assert.Equal(t, "Bearer sekret", gotAuth)
}

func TestHTTPExecutorNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, "", 5*time.Second)
	_, err := exec.Execute(context.Background(), Request{Query: "query { x }"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
