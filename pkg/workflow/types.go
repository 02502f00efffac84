package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/gantry/pkg/gateway"
)

// Credential-issuance flows an environment can be configured with.
const (
	FlowPublic            = "public"
	FlowClientCredentials = "client-credentials"
	FlowAuthorizationCode = "authorization-code"
	FlowKongAPIKeyACL     = "kong-api-key-acl"
	FlowKongACLOnly       = "kong-acl-only"
)

// KnownFlow reports whether flow names a supported issuance strategy.
func KnownFlow(flow string) bool {
	switch flow {
	case FlowPublic, FlowClientCredentials, FlowAuthorizationCode, FlowKongAPIKeyACL, FlowKongACLOnly:
		return true
	}
	return false
}

// NewCredential is the one-time credential material produced when a request
// is issued. Which fields are set depends on the flow.
type NewCredential struct {
	Flow             string `json:"flow"`
	ClientID         string `json:"clientId,omitempty"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	Issuer           string `json:"issuer,omitempty"`
	TokenEndpoint    string `json:"tokenEndpoint,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
	ClientPublicKey  string `json:"clientPublicKey,omitempty"`
	ClientPrivateKey string `json:"clientPrivateKey,omitempty"`
}

// SubjectIdentity is collected during the confirm-identity step of an
// authorization-code request.
type SubjectIdentity struct {
	Sub               string `json:"sub"`
	Azp               string `json:"azp"`
	Scope             string `json:"scope,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
}

// RequestControls is the serialized policy attached to an access request:
// what scopes, roles, ACL groups and plugin configs the grant should carry.
type RequestControls struct {
	DefaultClientScopes   []string                 `json:"defaultClientScopes,omitempty"`
	DefaultOptionalScopes []string                 `json:"defaultOptionalScopes,omitempty"`
	Roles                 []string                 `json:"roles,omitempty"`
	ACLGroups             []string                 `json:"aclGroups,omitempty"`
	Plugins               []gateway.ConsumerPlugin `json:"plugins,omitempty"`
	ClientCertificate     string                   `json:"clientCertificate,omitempty"`
	ClientGenCertificate  bool                     `json:"clientGenCertificate,omitempty"`
	JWKSUrl               string                   `json:"jwksUrl,omitempty"`
	Subject               *SubjectIdentity         `json:"subject,omitempty"`
}

// ParseRequestControls decodes the free-text controls field. An empty value
// yields zero controls.
func ParseRequestControls(raw string) (RequestControls, error) {
	var controls RequestControls
	if raw == "" {
		return controls, nil
	}
	if err := json.Unmarshal([]byte(raw), &controls); err != nil {
		return controls, fmt.Errorf("invalid request controls: %w", err)
	}
	return controls, nil
}

// IssuerEnvironmentConfig is one entry of a credential issuer's serialized
// per-environment configuration.
type IssuerEnvironmentConfig struct {
	Exists             bool   `json:"exists,omitempty"`
	Environment        string `json:"environment"`
	IssuerURL          string `json:"issuerUrl"`
	ClientRegistration string `json:"clientRegistration,omitempty"`
	ClientID           string `json:"clientId,omitempty"`
	ClientSecret       string `json:"clientSecret,omitempty"`
	InitialAccessToken string `json:"initialAccessToken,omitempty"`
}

// CheckIssuerEnvironmentConfig returns the issuer's config entry for the
// named environment, or nil unless exactly one entry matches. At most one
// entry per environment name is permitted.
func CheckIssuerEnvironmentConfig(issuer *CredentialIssuer, environment string) (*IssuerEnvironmentConfig, error) {
	if issuer.EnvironmentDetails == "" {
		return nil, nil
	}
	var details []IssuerEnvironmentConfig
	if err := json.Unmarshal([]byte(issuer.EnvironmentDetails), &details); err != nil {
		return nil, fmt.Errorf("credential issuer %s has invalid environment details: %w", issuer.Name, err)
	}
	var match *IssuerEnvironmentConfig
	count := 0
	for i := range details {
		if details[i].Environment == environment {
			match = &details[i]
			count++
		}
	}
	if count != 1 {
		return nil, nil
	}
	return match, nil
}

// GetIssuerEnvironmentConfig is CheckIssuerEnvironmentConfig with a missing
// entry promoted to an error.
func GetIssuerEnvironmentConfig(issuer *CredentialIssuer, environment string) (*IssuerEnvironmentConfig, error) {
	cfg, err := CheckIssuerEnvironmentConfig(issuer, environment)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("credential issuer %s has no configuration for environment %s", issuer.Name, environment)
	}
	return cfg, nil
}
