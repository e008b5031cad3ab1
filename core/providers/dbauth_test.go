package providers_test

import (
	"context"
	"net/http"
	"testing"

	"dbauthd/core"
	"dbauthd/core/providers"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dbAuthInput(t *testing.T, cookie string) core.DecoderInput {
	t.Helper()
	headers := map[string]string{}
	if cookie != "" {
		headers["Cookie"] = cookie
	}
	ev := core.FromGateway(&core.GatewayEvent{HTTPMethod: http.MethodGet, Headers: headers})
	req, err := core.Normalize(ev)
	require.NoError(t, err)
	return core.DecoderInput{Event: ev, Request: req}
}

func TestDbAuthDecoder(t *testing.T) {
	codec, err := core.NewSessionCodec("decoder-test-secret")
	require.NoError(t, err)
	sealed, err := codec.EncryptSession(core.SessionRecord{ID: "user-7"}, "csrf")
	require.NoError(t, err)
	decoder := providers.NewDbAuthDecoder(codec, zerolog.Nop())

	tests := []struct {
		name   string
		cookie string
		want   any
	}{
		{"valid session", "theme=dark; session=" + sealed, map[string]any{"id": "user-7"}},
		{"no cookie", "", nil},
		{"no session cookie", "theme=dark", nil},
		{"tampered session", "session=" + sealed[:len(sealed)-4] + "AAAA", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := dbAuthInput(t, tt.cookie)

			decoded, err := decoder.Decode(context.Background(), tt.cookie, in)

			assert.NoError(t, err)
			assert.Equal(t, tt.want, decoded)
		})
	}
}

func TestDbAuthDecoder_NoRequest(t *testing.T) {
	codec, err := core.NewSessionCodec("decoder-test-secret")
	require.NoError(t, err)

	decoded, err := providers.NewDbAuthDecoder(codec, zerolog.Nop()).Decode(context.Background(), "", core.DecoderInput{})

	assert.NoError(t, err)
	assert.Nil(t, decoded)
}
