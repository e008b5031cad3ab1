package providers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"dbauthd/core"
	"dbauthd/core/providers"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetlifyDecoder_ClientContextUser(t *testing.T) {
	decoder := providers.NewNetlifyDecoder(false)
	user := map[string]any{"sub": "netlify-user", "email": "n@example.com"}
	ev := core.FromGateway(&core.GatewayEvent{
		HTTPMethod:    http.MethodGet,
		ClientContext: map[string]any{"user": user},
	})

	decoded, err := decoder.Decode(context.Background(), "ignored", core.DecoderInput{Event: ev})

	require.NoError(t, err)
	assert.Equal(t, user, decoded)
}

func TestNetlifyDecoder_NoContextOutsideDevelopment(t *testing.T) {
	decoder := providers.NewNetlifyDecoder(false)
	token := mintHS256(t, "whatever", jwt.MapClaims{"sub": "user-1"})

	decoded, err := decoder.Decode(context.Background(), token, core.DecoderInput{
		Event: core.FromGateway(&core.GatewayEvent{HTTPMethod: http.MethodGet}),
	})

	assert.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestNetlifyDecoder_DevelopmentReadsUnverifiedClaims(t *testing.T) {
	decoder := providers.NewNetlifyDecoder(true)
	token := mintHS256(t, "unknown-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	decoded, err := decoder.Decode(context.Background(), token, core.DecoderInput{})

	require.NoError(t, err)
	assert.Equal(t, "user-1", decoded.(map[string]any)["sub"])
}

func TestNetlifyDecoder_DevelopmentExpired(t *testing.T) {
	decoder := providers.NewNetlifyDecoder(true)
	token := mintHS256(t, "unknown-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := decoder.Decode(context.Background(), token, core.DecoderInput{})

	assert.ErrorIs(t, err, providers.ErrExpiredToken)
}

func TestNetlifyDecoder_DevelopmentMalformed(t *testing.T) {
	decoder := providers.NewNetlifyDecoder(true)

	_, err := decoder.Decode(context.Background(), "garbage", core.DecoderInput{})

	assert.ErrorIs(t, err, providers.ErrInvalidToken)
}
