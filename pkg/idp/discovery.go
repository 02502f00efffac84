package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gantry/pkg/observability"
)

const (
	discoveryCacheSize   = 128
	discoveryCachePrefix = "gantry:oidc-discovery:"
)

// OpenIDConfig is the subset of the provider discovery document the portal
// needs.
type OpenIDConfig struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// DiscoveryClient resolves and caches provider discovery documents. Lookups
// hit a process-local LRU first, then the shared redis cache, then the
// provider itself; concurrent fetches for the same issuer are collapsed into
// one round trip.
type DiscoveryClient struct {
	local   *lru.Cache[string, *OpenIDConfig]
	redis   *redis.Client
	group   singleflight.Group
	ttl     time.Duration
	metrics *observability.Metrics
	log     *logrus.Entry
}

// NewDiscoveryClient creates a discovery client. redisClient may be nil for a
// purely local cache; metrics may be nil.
func NewDiscoveryClient(redisClient *redis.Client, ttl time.Duration, metrics *observability.Metrics, log *logrus.Logger) (*DiscoveryClient, error) {
	if log == nil {
		log = logrus.New()
	}
	local, err := lru.New[string, *OpenIDConfig](discoveryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery cache: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DiscoveryClient{
		local:   local,
		redis:   redisClient,
		ttl:     ttl,
		metrics: metrics,
		log:     log.WithField("component", "idp.discovery"),
	}, nil
}

// Get resolves the discovery document for an issuer.
func (c *DiscoveryClient) Get(ctx context.Context, issuerURL string) (*OpenIDConfig, error) {
	if cfg, ok := c.local.Get(issuerURL); ok {
		if c.metrics != nil {
			c.metrics.BrokerDiscoveryCacheHits.Inc()
		}
		return cfg, nil
	}

	if cfg := c.fromRedis(ctx, issuerURL); cfg != nil {
		if c.metrics != nil {
			c.metrics.BrokerDiscoveryCacheHits.Inc()
		}
		c.local.Add(issuerURL, cfg)
		return cfg, nil
	}

	if c.metrics != nil {
		c.metrics.BrokerDiscoveryCacheMisses.Inc()
	}

	value, err, _ := c.group.Do(issuerURL, func() (interface{}, error) {
		return c.fetch(ctx, issuerURL)
	})
	if err != nil {
		return nil, err
	}

	cfg := value.(*OpenIDConfig)
	c.local.Add(issuerURL, cfg)
	c.toRedis(ctx, issuerURL, cfg)
	return cfg, nil
}

func (c *DiscoveryClient) fetch(ctx context.Context, issuerURL string) (*OpenIDConfig, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover issuer %s: %w", issuerURL, err)
	}

	var cfg OpenIDConfig
	if err := provider.Claims(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document for %s: %w", issuerURL, err)
	}
	c.log.WithField("issuer", issuerURL).Debug("fetched discovery document")
	return &cfg, nil
}

func (c *DiscoveryClient) fromRedis(ctx context.Context, issuerURL string) *OpenIDConfig {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, discoveryCachePrefix+issuerURL).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("redis discovery cache read failed")
		}
		return nil
	}
	var cfg OpenIDConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil
	}
	return &cfg
}

func (c *DiscoveryClient) toRedis(ctx context.Context, issuerURL string, cfg *OpenIDConfig) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, discoveryCachePrefix+issuerURL, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("redis discovery cache write failed")
	}
}
