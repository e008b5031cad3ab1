package core_test

import (
	"bytes"
	"context"
	"testing"

	"dbauthd/core"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderRegistry_Lookup(t *testing.T) {
	registry := core.NewDecoderRegistry(zerolog.Nop(), false)
	registry.Register(core.ProviderSupabase, core.DecoderFunc(func(ctx context.Context, token string, in core.DecoderInput) (any, error) {
		return map[string]any{"sub": token}, nil
	}))

	decoder, ok := registry.Lookup(core.ProviderSupabase)
	require.True(t, ok)

	decoded, err := decoder.Decode(context.Background(), "abc", core.DecoderInput{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sub": "abc"}, decoded)
	assert.Equal(t, []core.ProviderType{core.ProviderSupabase}, registry.Providers())
}

func TestDecoderRegistry_IdentityFallback(t *testing.T) {
	registry := core.NewDecoderRegistry(zerolog.Nop(), false)

	decoder, ok := registry.Lookup(core.ProviderClerk)
	require.False(t, ok)

	decoded, err := decoder.Decode(context.Background(), "raw", core.DecoderInput{})
	require.NoError(t, err)
	assert.Equal(t, "raw", decoded)
}

func TestDecoderRegistry_FallbackWarnsInDevelopment(t *testing.T) {
	var dev, prod bytes.Buffer

	core.NewDecoderRegistry(zerolog.New(&dev), true).Lookup(core.ProviderAuth0)
	core.NewDecoderRegistry(zerolog.New(&prod), false).Lookup(core.ProviderAuth0)

	assert.Contains(t, dev.String(), `"level":"warn"`)
	assert.Contains(t, dev.String(), `"provider":"auth0"`)
	assert.Empty(t, prod.String())
}
