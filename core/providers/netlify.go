package providers

import (
	"context"
	"time"

	"dbauthd/core"

	"github.com/golang-jwt/jwt/v5"
)

// NetlifyDecoder returns the identity the hosting platform injected into the
// gateway event. Outside the platform (development only) the token's claims
// are read without signature verification.
type NetlifyDecoder struct {
	development bool
	now         func() time.Time
}

func NewNetlifyDecoder(development bool) *NetlifyDecoder {
	return &NetlifyDecoder{
		development: development,
		now:         time.Now,
	}
}

func (d *NetlifyDecoder) Decode(_ context.Context, token string, in core.DecoderInput) (any, error) {
	if in.Event.Kind == core.EventGateway && in.Event.Gateway != nil {
		if user, ok := in.Event.Gateway.ClientContext["user"].(map[string]any); ok {
			return user, nil
		}
	}

	if !d.development {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, classify(err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, classify(err)
	}
	if exp != nil && !d.now().Before(exp.Time) {
		return nil, ErrExpiredToken
	}

	return map[string]any(claims), nil
}
