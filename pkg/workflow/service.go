package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/activity"
	"github.com/platinummonkey/gantry/pkg/gateway"
	"github.com/platinummonkey/gantry/pkg/idp"
	"github.com/platinummonkey/gantry/pkg/observability"
)

// Records is the store surface the workflow engine needs. *Store satisfies it.
type Records interface {
	GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error)
	GetCredentialIssuer(ctx context.Context, id string) (*CredentialIssuer, error)
	ListServiceAccessesByEnvironment(ctx context.Context, ns, envID string) ([]ServiceAccess, error)
	ListAccessRequestIDsByEnvironment(ctx context.Context, envID string) ([]string, error)
	ListEnvironmentsByNamespace(ctx context.Context, ns string) ([]Environment, error)
	CreateServiceAccess(ctx context.Context, input ServiceAccessInput) (string, error)
	UpsertGatewayConsumer(ctx context.Context, consumer *gateway.Consumer) (string, error)
	LinkServiceAccess(ctx context.Context, serviceAccessID, requestID string) error
	MarkRequestIssued(ctx context.Context, requestID string, complete bool) error
	MarkRequestNotIssued(ctx context.Context, requestID string) error
	DeleteServiceAccesses(ctx context.Context, ids []string) error
	DeleteAccessRequests(ctx context.Context, ids []string) error
	DeleteEnvironment(ctx context.Context, id string) error
}

// ClientRegistrar registers and removes clients on the identity broker.
// *idp.RegistrationService satisfies it.
type ClientRegistrar interface {
	Register(ctx context.Context, issuerURL, accessToken string, req idp.ClientRequest) (*idp.ClientRegistration, error)
	Deregister(ctx context.Context, issuerURL, accessToken, clientID string) error
}

// TokenSource mints service-account tokens. *idp.TokenService satisfies it.
type TokenSource interface {
	ServiceAccountToken(ctx context.Context, issuerURL, clientID, clientSecret string, scopes []string) (string, error)
}

// Discovery resolves issuer endpoints. *idp.DiscoveryClient satisfies it.
type Discovery interface {
	Get(ctx context.Context, issuerURL string) (*idp.OpenIDConfig, error)
}

// GatewayAdmin provisions consumers on the API gateway.
// *gateway.AdminClient satisfies it.
type GatewayAdmin interface {
	CreateOrGetConsumer(ctx context.Context, username string) (*gateway.Consumer, error)
	CreateKeyAuth(ctx context.Context, consumerID, key string) (*gateway.KeyAuthCredential, error)
	AddToACL(ctx context.Context, consumerID, group string) error
	RemoveFromACL(ctx context.Context, consumerID, group string) error
	ApplyPlugins(ctx context.Context, consumerID string, plugins []gateway.ConsumerPlugin) error
	DeleteConsumer(ctx context.Context, id string) error
}

// ActivityLog records workflow steps. *activity.Recorder satisfies it.
type ActivityLog interface {
	Record(ctx context.Context, entry activity.Entry) (*activity.Activity, error)
	Update(ctx context.Context, activityID string, result activity.Result, message string) error
}

// Service orchestrates issuance, revocation and environment deletion across
// the record store, the identity broker and the gateway admin API.
type Service struct {
	records   Records
	registrar ClientRegistrar
	tokens    TokenSource
	discovery Discovery
	admin     GatewayAdmin
	activity  ActivityLog
	metrics   *observability.Metrics
	log       *logrus.Entry
}

// NewService wires the workflow engine's collaborators together.
func NewService(records Records, registrar ClientRegistrar, tokens TokenSource, discovery Discovery, admin GatewayAdmin, log ActivityLog, metrics *observability.Metrics, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		records:   records,
		registrar: registrar,
		tokens:    tokens,
		discovery: discovery,
		admin:     admin,
		activity:  log,
		metrics:   metrics,
		log:       logger.WithField("component", "workflow"),
	}
}

// Apply fulfils an approved access request: credential issuance with the
// broker, consumer provisioning on the gateway, and the service-access link
// back to the request. A request that is not approved, or already issued, is
// a no-op so retries converge. Completed steps are not rolled back on
// failure; the activity record carries the failure for later intervention.
func (s *Service) Apply(ctx context.Context, requestID, actor string) (*NewCredential, error) {
	req, err := s.records.GetAccessRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("access request %s not found", requestID)
	}
	if !req.IsApproved || req.IsIssued {
		s.log.WithField("request", requestID).Debug("nothing to apply")
		return nil, nil
	}
	if req.ProductEnvironment == nil {
		return nil, fmt.Errorf("access request %s has no target environment", requestID)
	}

	controls, err := ParseRequestControls(req.Controls)
	if err != nil {
		return nil, err
	}

	act, err := s.activity.Record(ctx, activity.Entry{
		Type:      "AccessRequest",
		Name:      req.Name,
		Action:    "issue",
		Result:    activity.ResultPending,
		Message:   fmt.Sprintf("Issuing credentials for %s", req.Name),
		Namespace: req.ProductEnvironment.Namespace(),
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	credential, err := s.issue(ctx, req, controls)
	if err != nil {
		s.metrics.ObserveWorkflowStep("issue", "failure")
		if aerr := s.activity.Update(ctx, act.ID, activity.ResultFailure, err.Error()); aerr != nil {
			s.log.WithError(aerr).Warn("failed to record issuance failure")
		}
		return nil, err
	}

	s.metrics.ObserveWorkflowStep("issue", "success")
	if err := s.activity.Update(ctx, act.ID, activity.ResultSuccess, ""); err != nil {
		s.log.WithError(err).Warn("failed to finalize issuance activity")
	}
	return credential, nil
}

func (s *Service) issue(ctx context.Context, req *AccessRequest, controls RequestControls) (*NewCredential, error) {
	env := req.ProductEnvironment
	credential := &NewCredential{Flow: env.Flow}
	username := grantIdentifier(req, env)

	if clientFlow(env.Flow) {
		issuerEnv, token, err := s.issuerAccess(ctx, env)
		if err != nil {
			return nil, err
		}
		grantType := "client_credentials"
		if env.Flow == FlowAuthorizationCode {
			grantType = "authorization_code"
		}
		registration, err := s.registrar.Register(ctx, issuerEnv.IssuerURL, token, idp.ClientRequest{
			ClientID:   username,
			GrantTypes: []string{grantType},
			Scope:      strings.Join(controls.DefaultClientScopes, " "),
		})
		if err != nil {
			return nil, fmt.Errorf("client registration failed: %w", err)
		}
		cfg, err := s.discovery.Get(ctx, issuerEnv.IssuerURL)
		if err != nil {
			return nil, err
		}
		credential.ClientID = registration.ClientID
		credential.ClientSecret = registration.ClientSecret
		credential.Issuer = issuerEnv.IssuerURL
		credential.TokenEndpoint = cfg.TokenEndpoint
	}

	var consumerRecordID string
	if env.Flow != FlowPublic {
		consumer, err := s.admin.CreateOrGetConsumer(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("consumer provisioning failed: %w", err)
		}
		if env.Flow == FlowKongAPIKeyACL {
			key, err := s.admin.CreateKeyAuth(ctx, consumer.ID, "")
			if err != nil {
				return nil, fmt.Errorf("api key issuance failed: %w", err)
			}
			credential.APIKey = key.Key
		}
		for _, group := range aclGroups(env.Namespace(), controls) {
			if err := s.admin.AddToACL(ctx, consumer.ID, group); err != nil {
				return nil, fmt.Errorf("acl update failed: %w", err)
			}
		}
		if len(controls.Plugins) > 0 {
			if err := s.admin.ApplyPlugins(ctx, consumer.ID, controls.Plugins); err != nil {
				return nil, err
			}
		}
		consumerRecordID, err = s.records.UpsertGatewayConsumer(ctx, consumer)
		if err != nil {
			return nil, err
		}
	}

	// authorization-code grants stay pending until the developer confirms a
	// subject identity
	complete := env.Flow != FlowAuthorizationCode || controls.Subject != nil

	var applicationID string
	if req.Application != nil {
		applicationID = req.Application.ID
	}
	serviceAccessID, err := s.records.CreateServiceAccess(ctx, ServiceAccessInput{
		Name:          username,
		Flow:          env.Flow,
		Active:        complete,
		ConsumerType:  "client",
		ConsumerID:    consumerRecordID,
		EnvironmentID: env.ID,
		ApplicationID: applicationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service access: %w", err)
	}
	if err := s.records.LinkServiceAccess(ctx, serviceAccessID, req.ID); err != nil {
		return nil, err
	}
	if err := s.records.MarkRequestIssued(ctx, req.ID, complete); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request":  req.ID,
		"flow":     env.Flow,
		"consumer": username,
		"complete": complete,
	}).Info("access request issued")
	return credential, nil
}

// issuerAccess resolves the environment's issuer config and a token able to
// manage clients on the broker.
func (s *Service) issuerAccess(ctx context.Context, env *Environment) (*IssuerEnvironmentConfig, string, error) {
	if env.CredentialIssuer == nil {
		return nil, "", fmt.Errorf("environment %s has no credential issuer", env.Name)
	}
	issuer, err := s.records.GetCredentialIssuer(ctx, env.CredentialIssuer.ID)
	if err != nil {
		return nil, "", err
	}
	if issuer == nil {
		return nil, "", fmt.Errorf("credential issuer %s not found", env.CredentialIssuer.ID)
	}
	issuerEnv, err := GetIssuerEnvironmentConfig(issuer, env.Name)
	if err != nil {
		return nil, "", err
	}
	token := issuerEnv.InitialAccessToken
	if token == "" {
		token, err = s.tokens.ServiceAccountToken(ctx, issuerEnv.IssuerURL, issuerEnv.ClientID, issuerEnv.ClientSecret, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to obtain broker token: %w", err)
		}
	}
	return issuerEnv, token, nil
}

func clientFlow(flow string) bool {
	return flow == FlowClientCredentials || flow == FlowAuthorizationCode
}

// grantIdentifier is the consumer username on the gateway and, for client
// flows, the clientId on the broker.
func grantIdentifier(req *AccessRequest, env *Environment) string {
	base := req.ID
	if req.Application != nil && req.Application.AppID != "" {
		base = req.Application.AppID
	}
	return strings.ToLower(base + "-" + env.AppID)
}

func aclGroups(ns string, controls RequestControls) []string {
	groups := make([]string, 0, len(controls.ACLGroups)+1)
	if ns != "" {
		groups = append(groups, ns)
	}
	for _, g := range controls.ACLGroups {
		if g != ns {
			groups = append(groups, g)
		}
	}
	return groups
}
