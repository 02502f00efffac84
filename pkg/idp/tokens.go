package idp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenCachePrefix = "gantry:broker-token:"

// tokenExpiryMargin keeps cached tokens from being handed out moments before
// they expire mid-call.
const tokenExpiryMargin = 30 * time.Second

// TokenService acquires service-account access tokens from the broker via
// the client-credentials grant, caching them in redis until shortly before
// expiry.
type TokenService struct {
	discovery *DiscoveryClient
	redis     *redis.Client
	log       *logrus.Entry
}

// NewTokenService creates a token service. redisClient may be nil to disable
// caching.
func NewTokenService(discovery *DiscoveryClient, redisClient *redis.Client, log *logrus.Logger) *TokenService {
	if log == nil {
		log = logrus.New()
	}
	return &TokenService{
		discovery: discovery,
		redis:     redisClient,
		log:       log.WithField("component", "idp.tokens"),
	}
}

// ServiceAccountToken returns a bearer token for the issuer's management
// client.
func (s *TokenService) ServiceAccountToken(ctx context.Context, issuerURL, clientID, clientSecret string, scopes []string) (string, error) {
	cacheKey := tokenCachePrefix + issuerURL + ":" + clientID

	if s.redis != nil {
		token, err := s.redis.Get(ctx, cacheKey).Result()
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && err != redis.Nil {
			s.log.WithError(err).Warn("redis token cache read failed")
		}
	}

	cfg, err := s.discovery.Get(ctx, issuerURL)
	if err != nil {
		return "", err
	}
	if cfg.TokenEndpoint == "" {
		return "", fmt.Errorf("issuer %s does not advertise a token endpoint", issuerURL)
	}

	grant := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     cfg.TokenEndpoint,
		Scopes:       scopes,
	}
	token, err := grant.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain service account token from %s: %w", issuerURL, err)
	}

	if s.redis != nil && !token.Expiry.IsZero() {
		ttl := time.Until(token.Expiry) - tokenExpiryMargin
		if ttl > 0 {
			if err := s.redis.Set(ctx, cacheKey, token.AccessToken, ttl).Err(); err != nil {
				s.log.WithError(err).Warn("redis token cache write failed")
			}
		}
	}
	return token.AccessToken, nil
}
