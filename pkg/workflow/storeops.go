package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/gateway"
	"github.com/platinummonkey/gantry/pkg/store"
)

// Store is the typed query/mutation surface the workflow engine uses over
// the record store. Reads run in the caller's context; mutations run under
// the elevated system context because issuance and cleanup touch fields the
// requester has no direct access to.
type Store struct {
	gw  *store.Gateway
	log *logrus.Entry
}

// NewStore wraps the record store gateway.
func NewStore(gw *store.Gateway, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{gw: gw, log: log.WithField("component", "workflow.store")}
}

const accessRequestQuery = `
query GetAccessRequest($id: ID!) {
  allAccessRequests(where: { id: $id }) {
    id
    name
    isApproved
    isIssued
    isComplete
    controls
    requestor { id, username, email }
    application { id, appId, name }
    productEnvironment {
      id
      appId
      name
      flow
      approval
      credentialIssuer { id }
      product { namespace }
    }
    serviceAccess {
      id
      name
      active
      consumer { id, username, customId, extForeignKey }
    }
  }
}`

// GetAccessRequest loads the request with the environment, application and
// service-access context issuance needs. Returns nil when the request does
// not exist.
func (s *Store) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	var requests []AccessRequest
	if err := s.query(ctx, accessRequestQuery, map[string]interface{}{"id": id}, "allAccessRequests", &requests); err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

const credentialIssuerQuery = `
query GetCredentialIssuer($id: ID!) {
  allCredentialIssuers(where: { id: $id }) {
    id
    name
    flow
    mode
    clientRegistration
    availableScopes
    clientRoles
    environmentDetails
  }
}`

// GetCredentialIssuer loads an issuer by id, nil when absent.
func (s *Store) GetCredentialIssuer(ctx context.Context, id string) (*CredentialIssuer, error) {
	var issuers []CredentialIssuer
	if err := s.query(ctx, credentialIssuerQuery, map[string]interface{}{"id": id}, "allCredentialIssuers", &issuers); err != nil {
		return nil, err
	}
	if len(issuers) == 0 {
		return nil, nil
	}
	return &issuers[0], nil
}

const serviceAccessesByEnvironmentQuery = `
query GetServiceAccessesByEnvironment($ns: String!, $envId: ID!) {
  allServiceAccesses(where: { productEnvironment: { id: $envId, product: { namespace: $ns } } }) {
    id
    name
    active
    consumer { id, username, customId }
  }
}`

// ListServiceAccessesByEnvironment returns the grants referencing the
// environment within the namespace.
func (s *Store) ListServiceAccessesByEnvironment(ctx context.Context, ns, envID string) ([]ServiceAccess, error) {
	var accesses []ServiceAccess
	vars := map[string]interface{}{"ns": ns, "envId": envID}
	if err := s.query(ctx, serviceAccessesByEnvironmentQuery, vars, "allServiceAccesses", &accesses); err != nil {
		return nil, err
	}
	return accesses, nil
}

const accessRequestsByEnvironmentQuery = `
query GetAccessRequestsByEnvironment($envId: ID!) {
  allAccessRequests(where: { productEnvironment: { id: $envId } }) {
    id
  }
}`

// ListAccessRequestIDsByEnvironment returns ids of every request targeting
// the environment.
func (s *Store) ListAccessRequestIDsByEnvironment(ctx context.Context, envID string) ([]string, error) {
	var requests []AccessRequest
	vars := map[string]interface{}{"envId": envID}
	if err := s.query(ctx, accessRequestsByEnvironmentQuery, vars, "allAccessRequests", &requests); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

const environmentsByNamespaceQuery = `
query GetEnvironmentsByNamespace($ns: String!) {
  allEnvironments(where: { product: { namespace: $ns } }) {
    id
    name
    appId
    flow
  }
}`

// ListEnvironmentsByNamespace returns every environment under the
// namespace's products.
func (s *Store) ListEnvironmentsByNamespace(ctx context.Context, ns string) ([]Environment, error) {
	var envs []Environment
	if err := s.query(ctx, environmentsByNamespaceQuery, map[string]interface{}{"ns": ns}, "allEnvironments", &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

const namespaceListQuery = `
query Namespaces {
  allNamespaces {
    name
  }
}`

// ListNamespaceNames returns the names of every namespace.
func (s *Store) ListNamespaceNames(ctx context.Context) ([]string, error) {
	var namespaces []Namespace
	if err := s.query(ctx, namespaceListQuery, nil, "allNamespaces", &namespaces); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		names = append(names, ns.Name)
	}
	return names, nil
}

const namespaceProfileQuery = `
query Namespace($ns: String!) {
  namespace(ns: $ns) {
    name
    scopes { name }
    permDomains
    permDataPlane
    permProtected
  }
}`

// GetNamespace returns the namespace profile, nil when unknown.
func (s *Store) GetNamespace(ctx context.Context, ns string) (*Namespace, error) {
	var profile *Namespace
	if err := s.query(ctx, namespaceProfileQuery, map[string]interface{}{"ns": ns}, "namespace", &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ServiceAccessInput is the data for a new service-access record.
type ServiceAccessInput struct {
	Name          string
	Flow          string
	Active        bool
	ConsumerType  string
	ConsumerID    string
	EnvironmentID string
	ApplicationID string
}

// CreateServiceAccess creates the grant record linking consumer, environment
// and application.
func (s *Store) CreateServiceAccess(ctx context.Context, input ServiceAccessInput) (string, error) {
	data := map[string]interface{}{
		"name":               input.Name,
		"flow":               input.Flow,
		"active":             input.Active,
		"consumerType":       input.ConsumerType,
		"productEnvironment": map[string]interface{}{"connect": map[string]interface{}{"id": input.EnvironmentID}},
	}
	if input.ConsumerID != "" {
		data["consumer"] = map[string]interface{}{"connect": map[string]interface{}{"id": input.ConsumerID}}
	}
	if input.ApplicationID != "" {
		data["application"] = map[string]interface{}{"connect": map[string]interface{}{"id": input.ApplicationID}}
	}
	return s.gw.Create(store.SystemContext(ctx), "ServiceAccess", data)
}

// UpsertGatewayConsumer mirrors a gateway consumer into the record store,
// keyed by the gateway-side id, and returns the store record id.
func (s *Store) UpsertGatewayConsumer(ctx context.Context, consumer *gateway.Consumer) (string, error) {
	ctx = store.SystemContext(ctx)
	existing, err := s.gw.Lookup(ctx, "allGatewayConsumers", "extForeignKey", consumer.ID, []string{"id", "username"})
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID(), nil
	}
	return s.gw.Create(ctx, "GatewayConsumer", map[string]interface{}{
		"username":      consumer.Username,
		"customId":      consumer.CustomID,
		"extForeignKey": consumer.ID,
	})
}

const linkServiceAccessMutation = `
mutation LinkServiceAccessToRequest($serviceAccessId: ID!, $requestId: ID!) {
  updateAccessRequest(id: $requestId, data: { serviceAccess: { connect: { id: $serviceAccessId } } }) {
    id
  }
}`

// LinkServiceAccess connects the grant back to the originating request.
func (s *Store) LinkServiceAccess(ctx context.Context, serviceAccessID, requestID string) error {
	vars := map[string]interface{}{"serviceAccessId": serviceAccessID, "requestId": requestID}
	return s.mutate(ctx, "LinkServiceAccessToRequest", linkServiceAccessMutation, vars)
}

const markRequestIssuedMutation = `
mutation MarkRequestIssued($requestId: ID!, $complete: Boolean!) {
  updateAccessRequest(id: $requestId, data: { isIssued: true, isComplete: $complete }) {
    id
  }
}`

// MarkRequestIssued flags the request issued, and complete when the flow
// needs no further developer action.
func (s *Store) MarkRequestIssued(ctx context.Context, requestID string, complete bool) error {
	vars := map[string]interface{}{"requestId": requestID, "complete": complete}
	return s.mutate(ctx, "MarkRequestIssued", markRequestIssuedMutation, vars)
}

const markRequestNotIssuedMutation = `
mutation MarkRequestNotIssued($requestId: ID!) {
  updateAccessRequest(id: $requestId, data: { isComplete: false, isIssued: false }) {
    id
  }
}`

// MarkRequestNotIssued clears the issuance flags after a revoke.
func (s *Store) MarkRequestNotIssued(ctx context.Context, requestID string) error {
	return s.mutate(ctx, "MarkRequestNotIssued", markRequestNotIssuedMutation, map[string]interface{}{"requestId": requestID})
}

const deleteServiceAccessesMutation = `
mutation DeleteServiceAccesses($ids: [ID!]) {
  deleteServiceAccesses(ids: $ids) {
    id
  }
}`

// DeleteServiceAccesses removes the named grant records.
func (s *Store) DeleteServiceAccesses(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.mutate(ctx, "DeleteServiceAccesses", deleteServiceAccessesMutation, map[string]interface{}{"ids": ids})
}

const deleteAccessRequestsMutation = `
mutation DeleteAccessRequests($ids: [ID!]) {
  deleteAccessRequests(ids: $ids) {
    id
  }
}`

// DeleteAccessRequests removes the named request records.
func (s *Store) DeleteAccessRequests(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.mutate(ctx, "DeleteAccessRequests", deleteAccessRequestsMutation, map[string]interface{}{"ids": ids})
}

// DeleteEnvironment removes the environment record itself.
func (s *Store) DeleteEnvironment(ctx context.Context, id string) error {
	_, err := s.gw.Remove(store.SystemContext(ctx), "Environment", id)
	return err
}

func (s *Store) query(ctx context.Context, doc string, vars map[string]interface{}, key string, into interface{}) error {
	result, err := s.gw.Executor().Execute(ctx, store.Request{Query: doc, Variables: vars})
	if err != nil {
		return fmt.Errorf("store query failed: %w", err)
	}
	if result.Rejected() {
		return fmt.Errorf("store query %s rejected: %s", key, result.Errors[0].Message)
	}
	raw, ok := result.Data[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", key, err)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, name, doc string, vars map[string]interface{}) error {
	result, err := s.gw.Executor().Execute(store.SystemContext(ctx), store.Request{Query: doc, Variables: vars})
	if err != nil {
		return fmt.Errorf("store mutation %s failed: %w", name, err)
	}
	if result.Rejected() {
		return fmt.Errorf("store mutation %s rejected: %s", name, result.Errors[0].Message)
	}
	s.log.WithField("mutation", name).Debug("store mutation applied")
	return nil
}
