package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AdminError is a non-success response from the gateway admin API.
type AdminError struct {
	StatusCode int
	Body       string
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("gateway admin API returned status %d: %s", e.StatusCode, e.Body)
}

func isStatus(err error, code int) bool {
	var aerr *AdminError
	return errors.As(err, &aerr) && aerr.StatusCode == code
}

// AdminClient talks to the gateway's admin API.
type AdminClient struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

// NewAdminClient creates a client for the admin API at baseURL.
func NewAdminClient(baseURL string, log *logrus.Logger) *AdminClient {
	if log == nil {
		log = logrus.New()
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.WithField("component", "gateway.admin"),
	}
}

// CreateOrGetConsumer creates a consumer for username, or returns the
// existing one when the gateway already has it. A new consumer gets a
// generated customId so credentials can be re-keyed without renaming.
func (c *AdminClient) CreateOrGetConsumer(ctx context.Context, username string) (*Consumer, error) {
	consumer := &Consumer{}
	body := map[string]string{"username": username, "custom_id": uuid.New().String()}
	err := c.do(ctx, http.MethodPost, "/consumers", body, consumer)
	if err == nil {
		c.log.WithField("username", username).Info("created gateway consumer")
		return consumer, nil
	}
	if !isStatus(err, http.StatusConflict) {
		return nil, err
	}
	if err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(username), nil, consumer); err != nil {
		return nil, err
	}
	c.log.WithField("username", username).Debug("reusing existing gateway consumer")
	return consumer, nil
}

// GetConsumer fetches a consumer by id or username, returning nil when the
// gateway does not know it.
func (c *AdminClient) GetConsumer(ctx context.Context, idOrUsername string) (*Consumer, error) {
	consumer := &Consumer{}
	err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(idOrUsername), nil, consumer)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return consumer, nil
}

// DeleteConsumer removes the consumer and everything attached to it. A
// consumer the gateway no longer knows is a no-op.
func (c *AdminClient) DeleteConsumer(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/consumers/"+url.PathEscape(id), nil, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	c.log.WithField("consumer", id).Info("deleted gateway consumer")
	return nil
}

// AddToACL puts the consumer in the named ACL group. Membership that already
// exists is left alone.
func (c *AdminClient) AddToACL(ctx context.Context, consumerID, group string) error {
	err := c.do(ctx, http.MethodPost, "/consumers/"+url.PathEscape(consumerID)+"/acls", map[string]string{"group": group}, nil)
	if err != nil && !isStatus(err, http.StatusConflict) {
		return err
	}
	c.log.WithFields(logrus.Fields{"consumer": consumerID, "group": group}).Debug("consumer added to acl group")
	return nil
}

// RemoveFromACL takes the consumer out of the named ACL group. A missing
// membership is a no-op.
func (c *AdminClient) RemoveFromACL(ctx context.Context, consumerID, group string) error {
	err := c.do(ctx, http.MethodDelete, "/consumers/"+url.PathEscape(consumerID)+"/acls/"+url.PathEscape(group), nil, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

// ListACLs returns the consumer's ACL group memberships.
func (c *AdminClient) ListACLs(ctx context.Context, consumerID string) ([]ACLEntry, error) {
	var page struct {
		Data []ACLEntry `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(consumerID)+"/acls", nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// CreateKeyAuth attaches an api-key credential to the consumer. When key is
// empty the key is generated.
func (c *AdminClient) CreateKeyAuth(ctx context.Context, consumerID, key string) (*KeyAuthCredential, error) {
	if key == "" {
		key = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	credential := &KeyAuthCredential{}
	if err := c.do(ctx, http.MethodPost, "/consumers/"+url.PathEscape(consumerID)+"/key-auth", map[string]string{"key": key}, credential); err != nil {
		return nil, err
	}
	c.log.WithField("consumer", consumerID).Info("issued api key credential")
	return credential, nil
}

// ApplyPlugins reconciles the consumer's plugins to the desired set. An
// existing plugin with the same name and scope is patched in place, anything
// new is created. Plugins outside the desired set are left untouched since
// other tooling may own them.
func (c *AdminClient) ApplyPlugins(ctx context.Context, consumerID string, desired []ConsumerPlugin) error {
	var page struct {
		Data []ConsumerPlugin `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(consumerID)+"/plugins", nil, &page); err != nil {
		return err
	}
	existing := make(map[string]ConsumerPlugin, len(page.Data))
	for _, p := range page.Data {
		existing[p.Name+"|"+p.scope()] = p
	}

	for _, plugin := range desired {
		current, ok := existing[plugin.Name+"|"+plugin.scope()]
		if ok {
			if err := c.do(ctx, http.MethodPatch, "/consumers/"+url.PathEscape(consumerID)+"/plugins/"+current.ID, plugin, nil); err != nil {
				return fmt.Errorf("failed to update plugin %s: %w", plugin.Name, err)
			}
			continue
		}
		if err := c.do(ctx, http.MethodPost, "/consumers/"+url.PathEscape(consumerID)+"/plugins", plugin, nil); err != nil {
			return fmt.Errorf("failed to create plugin %s: %w", plugin.Name, err)
		}
	}
	c.log.WithFields(logrus.Fields{"consumer": consumerID, "plugins": len(desired)}).Info("applied consumer plugins")
	return nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, into interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode admin request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build admin request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("admin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &AdminError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if into != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return fmt.Errorf("failed to decode admin response: %w", err)
		}
	}
	return nil
}
