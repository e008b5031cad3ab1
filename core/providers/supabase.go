package providers

import (
	"context"

	"dbauthd/core"

	"github.com/golang-jwt/jwt/v5"
)

// SupabaseDecoder verifies HS256 access tokens signed with the project's JWT secret.
type SupabaseDecoder struct {
	secret []byte
}

func NewSupabaseDecoder(jwtSecret string) *SupabaseDecoder {
	return &SupabaseDecoder{secret: []byte(jwtSecret)}
}

func (d *SupabaseDecoder) Decode(_ context.Context, token string, _ core.DecoderInput) (any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return d.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, classify(err)
	}

	return map[string]any(claims), nil
}
