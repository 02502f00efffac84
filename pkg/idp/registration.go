package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ClientRegistration is a client registered with the identity broker.
type ClientRegistration struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	RegistrationClientURI   string   `json:"registration_client_uri,omitempty"`
	RegistrationAccessToken string   `json:"registration_access_token,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRequest describes the client to register.
type ClientRequest struct {
	ClientID     string   `json:"client_id"`
	GrantTypes   []string `json:"grant_types,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	Scope        string   `json:"scope,omitempty"`
}

// BrokerError is a non-success response from the broker.
type BrokerError struct {
	StatusCode int
	Body       string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("identity broker returned status %d: %s", e.StatusCode, e.Body)
}

// RegistrationService performs dynamic client registration against the
// broker's registration endpoint.
type RegistrationService struct {
	discovery *DiscoveryClient
	client    *http.Client
	log       *logrus.Entry
}

// NewRegistrationService creates a registration service.
func NewRegistrationService(discovery *DiscoveryClient, log *logrus.Logger) *RegistrationService {
	if log == nil {
		log = logrus.New()
	}
	return &RegistrationService{
		discovery: discovery,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.WithField("component", "idp.registration"),
	}
}

// Register creates the client on the broker, reusing an existing registration
// when one already exists so a workflow retry converges instead of failing.
func (s *RegistrationService) Register(ctx context.Context, issuerURL, accessToken string, req ClientRequest) (*ClientRegistration, error) {
	cfg, err := s.discovery.Get(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	if cfg.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("issuer %s does not advertise a registration endpoint", issuerURL)
	}

	if existing, err := s.Get(ctx, issuerURL, accessToken, req.ClientID); err != nil {
		return nil, err
	} else if existing != nil {
		s.log.WithField("clientId", req.ClientID).Debug("reusing existing client registration")
		return existing, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration request: %w", err)
	}

	registration := &ClientRegistration{}
	if err := s.do(ctx, http.MethodPost, cfg.RegistrationEndpoint, accessToken, bytes.NewReader(body), registration); err != nil {
		return nil, err
	}
	s.log.WithField("clientId", registration.ClientID).Info("registered client with identity broker")
	return registration, nil
}

// Get fetches an existing registration by clientId, returning nil when the
// broker does not know the client.
func (s *RegistrationService) Get(ctx context.Context, issuerURL, accessToken, clientID string) (*ClientRegistration, error) {
	cfg, err := s.discovery.Get(ctx, issuerURL)
	if err != nil {
		return nil, err
	}

	registration := &ClientRegistration{}
	err = s.do(ctx, http.MethodGet, cfg.RegistrationEndpoint+"/"+clientID, accessToken, nil, registration)
	if err != nil {
		var berr *BrokerError
		if errors.As(err, &berr) && berr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return registration, nil
}

// Deregister removes the client from the broker. A client the broker no
// longer knows is a no-op, so revocation is idempotent.
func (s *RegistrationService) Deregister(ctx context.Context, issuerURL, accessToken, clientID string) error {
	cfg, err := s.discovery.Get(ctx, issuerURL)
	if err != nil {
		return err
	}

	err = s.do(ctx, http.MethodDelete, cfg.RegistrationEndpoint+"/"+clientID, accessToken, nil, nil)
	if err != nil {
		var berr *BrokerError
		if errors.As(err, &berr) && berr.StatusCode == http.StatusNotFound {
			s.log.WithField("clientId", clientID).Debug("client already deregistered")
			return nil
		}
		return err
	}
	s.log.WithField("clientId", clientID).Info("deregistered client from identity broker")
	return nil
}

func (s *RegistrationService) do(ctx context.Context, method, url, accessToken string, body io.Reader, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build broker request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BrokerError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if into != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return fmt.Errorf("failed to decode broker response: %w", err)
		}
	}
	return nil
}
