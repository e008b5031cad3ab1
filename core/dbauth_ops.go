package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (h *DbAuthHandler) login(ctx context.Context, st authState) (result, error) {
	user, err := h.verifyUser(ctx, stringParam(st.params, "username"), stringParam(st.params, "password"))
	if err != nil {
		return result{}, err
	}

	handlerUser, err := h.config.Login.Handler(ctx, user)
	if err != nil {
		return result{}, err
	}
	if handlerUser == nil || handlerUser.ID == "" {
		return result{}, newDbAuthError(ErrNoUserID, "")
	}

	return h.loginResponse(handlerUser, http.StatusOK)
}

func (h *DbAuthHandler) signup(ctx context.Context, st authState) (result, error) {
	if h.config.Signup.Disabled {
		return result{}, newDbAuthError(ErrFlowNotEnabled, "")
	}

	username := stringParam(st.params, "username")
	password := stringParam(st.params, "password")
	if err := h.validateField("username", username); err != nil {
		return result{}, err
	}
	if err := h.validateField("password", password); err != nil {
		return result{}, err
	}

	_, err := h.repo.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return result{}, newDbAuthError(ErrDuplicateUsername, h.config.Signup.Errors.UsernameTaken, "username", username)
	case !errors.Is(err, ErrNotFound):
		return result{}, h.genericError("failed to look up username", err)
	}

	start := time.Now()
	hashedPassword, salt, err := HashPassword(password, "")
	h.observeHash(start)
	if err != nil {
		return result{}, h.genericError("failed to hash password", err)
	}

	attributes := make(map[string]any, len(st.params))
	for k, v := range st.params {
		if k == "username" || k == "password" || k == "method" {
			continue
		}
		attributes[k] = v
	}

	created, err := h.config.Signup.Handler(ctx, SignupInput{
		Username:       username,
		HashedPassword: hashedPassword,
		Salt:           salt,
		UserAttributes: attributes,
	})
	if err != nil {
		return result{}, err
	}

	if created.User == nil {
		return result{
			body:       map[string]string{"message": created.Message},
			statusCode: http.StatusCreated,
		}, nil
	}
	if created.User.ID == "" {
		return result{}, newDbAuthError(ErrNoUserID, "")
	}
	return h.loginResponse(created.User, http.StatusCreated)
}

func (h *DbAuthHandler) logout(_ context.Context, _ authState) (result, error) {
	return h.logoutResponse(nil), nil
}

func (h *DbAuthHandler) forgotPassword(ctx context.Context, st authState) (result, error) {
	opts := h.config.ForgotPassword
	if opts.Disabled {
		return result{}, newDbAuthError(ErrFlowNotEnabled, "")
	}

	username := stringParam(st.params, "username")
	if strings.TrimSpace(username) == "" {
		return result{}, newDbAuthError(ErrUsernameRequired, opts.Errors.UsernameRequired)
	}

	user, err := h.repo.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return result{}, newDbAuthError(ErrUsernameNotFound, opts.Errors.UsernameNotFound, "username", username)
	}
	if err != nil {
		return result{}, h.genericError("failed to look up username", err)
	}

	token := GenerateResetToken()
	expiresAt := h.now().Add(time.Duration(opts.Expires) * time.Second)
	if err := h.repo.SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return result{}, h.genericError("failed to store reset token", err)
	}
	user.ResetToken = &token
	user.ResetTokenExpiresAt = &expiresAt

	response, err := opts.Handler(ctx, user.Sanitize())
	if err != nil {
		return result{}, err
	}

	return result{
		body:       response,
		headers:    h.deleteSessionHeader(),
		statusCode: http.StatusOK,
	}, nil
}

func (h *DbAuthHandler) resetPassword(ctx context.Context, st authState) (result, error) {
	opts := h.config.ResetPassword
	if opts.Disabled {
		return result{}, newDbAuthError(ErrFlowNotEnabled, "")
	}

	resetToken := stringParam(st.params, "resetToken")
	password := stringParam(st.params, "password")
	if strings.TrimSpace(resetToken) == "" {
		return result{}, newDbAuthError(ErrResetTokenRequired, opts.Errors.ResetTokenRequired)
	}
	if strings.TrimSpace(password) == "" {
		return result{}, newDbAuthError(ErrPasswordRequired, "")
	}

	user, err := h.findUserByToken(ctx, resetToken)
	if err != nil {
		return result{}, err
	}

	start := time.Now()
	hashedPassword, salt, err := HashPassword(password, user.Salt)
	h.observeHash(start)
	if err != nil {
		return result{}, h.genericError("failed to hash password", err)
	}

	if !opts.AllowReusedPassword && h.matchesStoredHash(user, password, hashedPassword) {
		return result{}, newDbAuthError(ErrReusedPassword, opts.Errors.ReusedPassword)
	}

	err = h.repo.ConsumeResetToken(ctx, user.ID, resetToken, hashedPassword, salt)
	if errors.Is(err, ErrNotFound) {
		// Another request consumed or replaced the token first.
		return result{}, newDbAuthError(ErrResetTokenInvalid, opts.Errors.ResetTokenInvalid)
	}
	if err != nil {
		return result{}, h.genericError("failed to update password", err)
	}
	user.HashedPassword = hashedPassword
	user.Salt = salt
	user.ResetToken = nil
	user.ResetTokenExpiresAt = nil

	login, err := opts.Handler(ctx, user.Sanitize())
	if err != nil {
		return result{}, err
	}
	if login {
		return h.loginResponse(user, http.StatusOK)
	}
	return h.logoutResponse(nil), nil
}

func (h *DbAuthHandler) validateResetToken(ctx context.Context, st authState) (result, error) {
	resetToken := stringParam(st.params, "resetToken")
	if strings.TrimSpace(resetToken) == "" {
		return result{}, newDbAuthError(ErrResetTokenRequired, h.config.ResetPassword.Errors.ResetTokenRequired)
	}

	user, err := h.findUserByToken(ctx, resetToken)
	if err != nil {
		return result{}, err
	}

	return result{
		body:       user.Sanitize(),
		headers:    h.deleteSessionHeader(),
		statusCode: http.StatusOK,
	}, nil
}

// getToken degrades to a logout response when there is no usable session.
func (h *DbAuthHandler) getToken(ctx context.Context, st authState) (result, error) {
	user, err := h.currentUser(ctx, st)
	if errors.Is(err, ErrNotLoggedIn) {
		return h.logoutResponse(nil), nil
	}
	if err != nil {
		return h.logoutResponse(map[string]string{"error": err.Error()}), nil
	}

	return result{body: user.ID, statusCode: http.StatusOK}, nil
}

func (h *DbAuthHandler) currentUser(ctx context.Context, st authState) (*User, error) {
	if st.session == nil || st.session.ID == "" {
		return nil, newDbAuthError(ErrNotLoggedIn, "")
	}

	user, err := h.repo.FindByID(ctx, st.session.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, newDbAuthError(ErrUserNotFound, "")
	}
	if err != nil {
		return nil, h.genericError("failed to look up session user", err)
	}
	return user, nil
}

func (h *DbAuthHandler) verifyUser(ctx context.Context, username, password string) (*User, error) {
	errs := h.config.Login.Errors
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, newDbAuthError(ErrUsernameAndPasswordRequired, errs.UsernameOrPasswordMissing)
	}

	user, err := h.repo.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, newDbAuthError(ErrUserNotFound, errs.UsernameNotFound, "username", username)
	}
	if err != nil {
		return nil, h.genericError("failed to look up username", err)
	}

	start := time.Now()
	hashedPassword, _, err := HashPassword(password, user.Salt)
	h.observeHash(start)
	if err != nil {
		return nil, h.genericError("failed to hash password", err)
	}
	if ComparePasswordHash(hashedPassword, user.HashedPassword) {
		return user, nil
	}

	if ComparePasswordHash(LegacyHashPassword(password, user.Salt), user.HashedPassword) {
		// Upgrade the stored hash; a failure here must not block the login.
		if err := h.repo.UpdatePasswordHash(ctx, user.ID, hashedPassword, user.Salt); err != nil {
			h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to upgrade legacy password hash")
		} else {
			user.HashedPassword = hashedPassword
		}
		return user, nil
	}

	return nil, newDbAuthError(ErrIncorrectPassword, errs.IncorrectPassword, "username", username)
}

// findUserByToken retires an expired token on first sight. A retired token
// keeps reporting expiry instead of becoming unknown.
func (h *DbAuthHandler) findUserByToken(ctx context.Context, token string) (*User, error) {
	errs := h.config.ResetPassword.Errors

	user, err := h.repo.FindByResetToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, newDbAuthError(ErrResetTokenInvalid, errs.ResetTokenInvalid)
	}
	if err != nil {
		return nil, h.genericError("failed to look up reset token", err)
	}

	retired := user.ResetToken == nil || *user.ResetToken != token
	if retired || user.ResetTokenExpiresAt == nil || h.now().After(*user.ResetTokenExpiresAt) {
		if !retired {
			if err := h.repo.ClearResetToken(ctx, user.ID, token); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, h.genericError("failed to clear reset token", err)
			}
		}
		return nil, newDbAuthError(ErrResetTokenExpired, errs.ResetTokenExpired)
	}

	return user, nil
}

func (h *DbAuthHandler) matchesStoredHash(user *User, password, hashedPassword string) bool {
	return ComparePasswordHash(hashedPassword, user.HashedPassword) ||
		ComparePasswordHash(LegacyHashPassword(password, user.Salt), user.HashedPassword)
}

func (h *DbAuthHandler) validateField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return newDbAuthError(ErrFieldRequired, h.config.Signup.Errors.FieldMissing, "field", name)
	}
	return nil
}

func (h *DbAuthHandler) genericError(msg string, err error) error {
	h.logger.Error().Err(err).Msg(msg)
	return newDbAuthError(ErrGeneric, "")
}

func (h *DbAuthHandler) observeHash(start time.Time) {
	if h.metrics != nil {
		h.metrics.ObservePasswordHash(start)
	}
}

// stringParam reads a body parameter as a string. Non-string scalars are
// formatted; absent or null values are "".
func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
