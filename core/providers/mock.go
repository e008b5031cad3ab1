package providers

import (
	"context"

	"dbauthd/core"
)

const (
	ProviderMock core.ProviderType = "mock"
)

// Predefined test tokens
const (
	ValidToken1  = "mock_token_1"
	ValidToken2  = "mock_token_2"
	RejectToken  = "mock_token_rejected"
	InvalidToken = "mock_token_invalid"
)

var (
	Claims1 = map[string]any{"sub": "mock_user_1", "email": "user1@mock.test"}
	Claims2 = map[string]any{"sub": "mock_user_2", "email": "user2@mock.test"}
)

// MockDecoder is a test implementation of core.Decoder
type MockDecoder struct {
	tokens map[string]map[string]any

	// track calls for verification
	DecodeCalls int
	LastToken   string
	LastInput   core.DecoderInput
}

func NewMockDecoder() *MockDecoder {
	return &MockDecoder{
		tokens: map[string]map[string]any{
			ValidToken1: Claims1,
			ValidToken2: Claims2,
		},
	}
}

func (m *MockDecoder) Decode(_ context.Context, token string, in core.DecoderInput) (any, error) {
	m.DecodeCalls++
	m.LastToken = token
	m.LastInput = in

	// Cookie credentials arrive as the raw Cookie header
	if session := core.ParseSessionCookie(token); session != "" {
		token = session
	}

	switch token {
	case RejectToken:
		return nil, nil
	case InvalidToken:
		return nil, ErrInvalidToken
	}

	claims, ok := m.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
