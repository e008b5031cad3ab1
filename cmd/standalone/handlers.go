package main

import (
	"context"
	"time"

	"dbauthd/core"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// hostHandlers are the lifecycle callbacks of the standalone daemon: users
// are stored as-is and reset tokens are only logged.
type hostHandlers struct {
	repo   core.Repository
	logger zerolog.Logger
}

func (h *hostHandlers) install(cfg *core.DbAuthConfig) {
	cfg.Login.Handler = h.login
	cfg.Signup.Handler = h.signup
	cfg.ForgotPassword.Handler = h.forgotPassword
	cfg.ResetPassword.Handler = h.resetPassword
}

func (h *hostHandlers) login(_ context.Context, user *core.User) (*core.User, error) {
	return user, nil
}

func (h *hostHandlers) signup(ctx context.Context, input core.SignupInput) (core.SignupResult, error) {
	now := time.Now().UTC()
	user := &core.User{
		ID:             uuid.NewString(),
		Username:       input.Username,
		HashedPassword: input.HashedPassword,
		Salt:           input.Salt,
		Attributes:     input.UserAttributes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		return core.SignupResult{}, err
	}

	h.logger.Info().Str("user_id", user.ID).Msg("user signed up")
	return core.SignupResult{User: user}, nil
}

func (h *hostHandlers) forgotPassword(_ context.Context, user *core.SanitizedUser) (any, error) {
	// No mailer: operators pick the token up from the log.
	h.logger.Info().
		Str("user_id", user.ID).
		Str("reset_token", *user.ResetToken).
		Time("expires_at", *user.ResetTokenExpiresAt).
		Msg("password reset requested")
	return map[string]string{"message": "reset token issued"}, nil
}

func (h *hostHandlers) resetPassword(_ context.Context, user *core.SanitizedUser) (bool, error) {
	h.logger.Info().Str("user_id", user.ID).Msg("password reset completed")
	return true, nil
}

// currentUser loads the stored user for dbAuth sessions; other providers'
// claims are returned unchanged.
func (h *hostHandlers) currentUser(ctx context.Context, decoded any, meta core.AuthMeta, _ core.DecoderInput) (any, error) {
	if meta.Type != core.ProviderDbAuth {
		return decoded, nil
	}

	claims, ok := decoded.(map[string]any)
	if !ok {
		return nil, nil
	}
	id, _ := claims["id"].(string)
	user, err := h.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Sanitize(), nil
}
