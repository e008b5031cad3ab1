package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dbauthd/core"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

const defaultJWKSCacheTTL = 10 * time.Minute

// JWKSConfig configures verification of provider-signed JWTs (auth0, clerk,
// azureActiveDirectory) against the provider's published key set.
type JWKSConfig struct {
	JWKSURL  string        `yaml:"jwks_url"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type JWKSDecoder struct {
	config     *JWKSConfig
	httpClient *http.Client
	cache      *ttlcache.Cache[string, *jose.JSONWebKeySet]
}

func NewJWKSDecoder(config *JWKSConfig) *JWKSDecoder {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}

	return &JWKSDecoder{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *jose.JSONWebKeySet](ttl),
			ttlcache.WithDisableTouchOnHit[string, *jose.JSONWebKeySet](),
		),
	}
}

func (d *JWKSDecoder) Decode(ctx context.Context, token string, _ core.DecoderInput) (any, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}),
		jwt.WithExpirationRequired(),
	}
	if d.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(d.config.Issuer))
	}
	if d.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(d.config.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return d.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	return map[string]any(claims), nil
}

// key resolves kid, refetching the key set once to pick up rotated keys.
func (d *JWKSDecoder) key(ctx context.Context, kid string) (interface{}, error) {
	set, err := d.keySet(ctx, false)
	if err != nil {
		return nil, err
	}

	if key, ok := pickKey(set, kid); ok {
		return key, nil
	}

	set, err = d.keySet(ctx, true)
	if err != nil {
		return nil, err
	}
	if key, ok := pickKey(set, kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
}

func pickKey(set *jose.JSONWebKeySet, kid string) (interface{}, bool) {
	if kid == "" {
		if len(set.Keys) == 1 {
			return set.Keys[0].Key, true
		}
		return nil, false
	}

	keys := set.Key(kid)
	if len(keys) == 0 {
		return nil, false
	}
	return keys[0].Key, true
}

func (d *JWKSDecoder) keySet(ctx context.Context, refresh bool) (*jose.JSONWebKeySet, error) {
	if !refresh {
		if item := d.cache.Get(d.config.JWKSURL); item != nil {
			return item.Value(), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build jwks request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch jwks: status %d: %s", resp.StatusCode, string(body))
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode jwks: %w", err)
	}

	d.cache.Set(d.config.JWKSURL, &set, ttlcache.DefaultTTL)
	return &set, nil
}
