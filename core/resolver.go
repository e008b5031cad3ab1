package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	HeaderAuthProvider = "auth-provider"
	SchemaCookie       = "cookie"
)

var ErrAuthorizationHeaderInvalid = errors.New("authorization header is not valid")

type AuthorizationHeader struct {
	Schema string
	Token  string
}

// ParseAuthorizationHeader splits `Authorization: <Schema> <token>` on the
// first space.
func ParseAuthorizationHeader(req *Request) (AuthorizationHeader, error) {
	header := req.Header("Authorization")
	schema, token, ok := strings.Cut(header, " ")
	if !ok || schema == "" || token == "" || strings.Contains(token, " ") {
		return AuthorizationHeader{}, ErrAuthorizationHeaderInvalid
	}
	return AuthorizationHeader{Schema: schema, Token: token}, nil
}

// AuthMeta describes where a decoded credential came from.
type AuthMeta struct {
	Type   ProviderType `json:"type"`
	Schema string       `json:"schema"`
	Token  string       `json:"token"`
}

// AuthContext is the per-request authentication payload.
type AuthContext struct {
	Decoded any
	Meta    AuthMeta
}

type AuthContextResolver struct {
	registry *DecoderRegistry
	metrics  ResolverMetrics
}

// ResolverMetrics is satisfied by metrics.Metrics; nil disables recording.
type ResolverMetrics interface {
	ObserveResolution(provider, outcome string)
}

func NewAuthContextResolver(registry *DecoderRegistry, metrics ResolverMetrics) *AuthContextResolver {
	return &AuthContextResolver{
		registry: registry,
		metrics:  metrics,
	}
}

// Resolve returns nil without error when the request names no auth provider.
func (r *AuthContextResolver) Resolve(ctx context.Context, ev Event, req *Request) (*AuthContext, error) {
	provider := ProviderType(req.Header(HeaderAuthProvider))
	if provider == "" {
		r.observe("", "anonymous")
		return nil, nil
	}

	var credential AuthorizationHeader
	if cookie := req.Header("Cookie"); cookie != "" {
		credential = AuthorizationHeader{Schema: SchemaCookie, Token: cookie}
	} else {
		parsed, err := ParseAuthorizationHeader(req)
		if err != nil {
			r.observe(provider, "invalid_header")
			return nil, err
		}
		credential = parsed
	}

	decoder, registered := r.registry.Lookup(provider)
	decoded, err := decoder.Decode(ctx, credential.Token, DecoderInput{Event: ev, Request: req})
	if err != nil {
		r.observe(provider, "error")
		return nil, fmt.Errorf("failed to decode %s token: %w", provider, err)
	}

	switch {
	case !registered:
		r.observe(provider, "passthrough")
	case decoded == nil:
		r.observe(provider, "rejected")
	default:
		r.observe(provider, "decoded")
	}

	return &AuthContext{
		Decoded: decoded,
		Meta: AuthMeta{
			Type:   provider,
			Schema: credential.Schema,
			Token:  credential.Token,
		},
	}, nil
}

func (r *AuthContextResolver) observe(provider ProviderType, outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveResolution(string(provider), outcome)
	}
}
