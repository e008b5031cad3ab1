package providers

import (
	"context"

	"dbauthd/core"

	"github.com/rs/zerolog"
)

// DbAuthDecoder reads the session cookie sealed by the dbAuth handler. The
// token argument is ignored; the cookie is taken from the request itself so
// bearer-style clients work too.
type DbAuthDecoder struct {
	codec  *core.SessionCodec
	logger zerolog.Logger
}

func NewDbAuthDecoder(codec *core.SessionCodec, logger zerolog.Logger) *DbAuthDecoder {
	return &DbAuthDecoder{
		codec:  codec,
		logger: logger,
	}
}

func (d *DbAuthDecoder) Decode(_ context.Context, _ string, in core.DecoderInput) (any, error) {
	if in.Request == nil {
		return nil, nil
	}

	session, _, err := d.codec.DecryptSession(core.ParseSessionCookie(in.Request.Header("Cookie")))
	if err != nil {
		d.logger.Debug().Err(err).Msg("treating undecryptable dbAuth session as logged out")
		return nil, nil
	}
	if session == nil || session.ID == "" {
		return nil, nil
	}

	return map[string]any{"id": session.ID}, nil
}
