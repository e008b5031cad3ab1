package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DecoderInput carries the request a token arrived on.
type DecoderInput struct {
	Event   Event
	Request *Request
}

// Decoder turns a raw bearer or cookie token into an identity claim for one
// identity provider. The result is nil (rejected), a string, or a
// map[string]any of claims.
type Decoder interface {
	Decode(ctx context.Context, token string, in DecoderInput) (any, error)
}

type DecoderFunc func(ctx context.Context, token string, in DecoderInput) (any, error)

func (f DecoderFunc) Decode(ctx context.Context, token string, in DecoderInput) (any, error) {
	return f(ctx, token, in)
}

// IdentityDecoder returns the token unchanged. Unknown providers fall back to it.
var IdentityDecoder = DecoderFunc(func(_ context.Context, token string, _ DecoderInput) (any, error) {
	return token, nil
})

type DecoderRegistry struct {
	mu          sync.RWMutex
	decoders    map[ProviderType]Decoder
	logger      zerolog.Logger
	development bool
}

func NewDecoderRegistry(logger zerolog.Logger, development bool) *DecoderRegistry {
	return &DecoderRegistry{
		decoders:    make(map[ProviderType]Decoder),
		logger:      logger,
		development: development,
	}
}

func (r *DecoderRegistry) Register(provider ProviderType, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[provider] = decoder
}

// Lookup returns the decoder registered for provider. The second result is
// false when the identity decoder was substituted.
func (r *DecoderRegistry) Lookup(provider ProviderType) (Decoder, bool) {
	r.mu.RLock()
	decoder, ok := r.decoders[provider]
	r.mu.RUnlock()
	if ok {
		return decoder, true
	}

	if r.development {
		r.logger.Warn().
			Str("provider", string(provider)).
			Msg("no auth decoder registered for provider, passing the raw token through")
	}
	return IdentityDecoder, false
}

func (r *DecoderRegistry) Providers() []ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]ProviderType, 0, len(r.decoders))
	for provider := range r.decoders {
		providers = append(providers, provider)
	}
	return providers
}
