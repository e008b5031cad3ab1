package core

import (
	"context"
	"os"
)

// Host-supplied lifecycle handlers.
type (
	// LoginHandler may reject a verified user (e.g. unconfirmed email) by
	// returning an error. The returned user must carry an ID.
	LoginHandler func(ctx context.Context, user *User) (*User, error)

	// SignupHandler persists a new user. Returning a user logs them in;
	// returning only a message leaves them logged out (e.g. pending verification).
	SignupHandler func(ctx context.Context, input SignupInput) (SignupResult, error)

	// ForgotPasswordHandler delivers the reset token. A non-nil result is
	// returned to the client as JSON.
	ForgotPasswordHandler func(ctx context.Context, user *SanitizedUser) (any, error)

	// ResetPasswordHandler returns true to log the user in after a reset.
	ResetPasswordHandler func(ctx context.Context, user *SanitizedUser) (bool, error)
)

type SignupInput struct {
	Username       string
	HashedPassword string
	Salt           string
	UserAttributes map[string]any
}

type SignupResult struct {
	User    *User
	Message string
}

type LoginErrors struct {
	UsernameOrPasswordMissing string `yaml:"username_or_password_missing"`
	UsernameNotFound          string `yaml:"username_not_found"`
	IncorrectPassword         string `yaml:"incorrect_password"`
}

type LoginOptions struct {
	Expires int          `yaml:"expires"` // Session lifetime in seconds
	Handler LoginHandler `yaml:"-"`
	Errors  LoginErrors  `yaml:"errors"`
}

type SignupErrors struct {
	FieldMissing  string `yaml:"field_missing"`
	UsernameTaken string `yaml:"username_taken"`
}

type SignupOptions struct {
	Disabled bool          `yaml:"disabled"`
	Handler  SignupHandler `yaml:"-"`
	Errors   SignupErrors  `yaml:"errors"`
}

type ForgotPasswordErrors struct {
	UsernameNotFound string `yaml:"username_not_found"`
	UsernameRequired string `yaml:"username_required"`
}

type ForgotPasswordOptions struct {
	Disabled bool                  `yaml:"disabled"`
	Expires  int                   `yaml:"expires"` // Reset token lifetime in seconds
	Handler  ForgotPasswordHandler `yaml:"-"`
	Errors   ForgotPasswordErrors  `yaml:"errors"`
}

type ResetPasswordErrors struct {
	ResetTokenExpired  string `yaml:"reset_token_expired"`
	ResetTokenInvalid  string `yaml:"reset_token_invalid"`
	ResetTokenRequired string `yaml:"reset_token_required"`
	ReusedPassword     string `yaml:"reused_password"`
}

type ResetPasswordOptions struct {
	Disabled            bool                 `yaml:"disabled"`
	AllowReusedPassword bool                 `yaml:"allow_reused_password"`
	Handler             ResetPasswordHandler `yaml:"-"`
	Errors              ResetPasswordErrors  `yaml:"errors"`
}

type DbAuthConfig struct {
	SessionSecret string `yaml:"-"` // SESSION_SECRET
	CookieDomain  string `yaml:"-"` // DBAUTH_COOKIE_DOMAIN
	Development   bool   `yaml:"-"` // NODE_ENV=development

	Login          LoginOptions          `yaml:"login"`
	Signup         SignupOptions         `yaml:"signup"`
	ForgotPassword ForgotPasswordOptions `yaml:"forgot_password"`
	ResetPassword  ResetPasswordOptions  `yaml:"reset_password"`

	// Cookie, when non-empty, replaces the legacy fixed cookie attributes
	Cookie CookieAttributes `yaml:"cookie"`
	Cors   *CorsConfig      `yaml:"cors"`

	// EnforceCsrf requires POSTs made with a live session to echo the csrf-token
	EnforceCsrf bool `yaml:"enforce_csrf"`
}

// ApplyEnv fills the environment-sourced fields.
func (c *DbAuthConfig) ApplyEnv() {
	c.SessionSecret = os.Getenv("SESSION_SECRET")
	c.CookieDomain = os.Getenv("DBAUTH_COOKIE_DOMAIN")
	c.Development = os.Getenv("NODE_ENV") == "development"
}

func (c *DbAuthConfig) validate() error {
	if c.SessionSecret == "" {
		return ErrNoSessionSecret
	}
	if c.Login.Expires <= 0 {
		return ErrNoSessionExpiration
	}
	if c.Login.Handler == nil {
		return ErrNoLoginHandler
	}
	if !c.Signup.Disabled && c.Signup.Handler == nil {
		return ErrNoSignupHandler
	}
	if !c.ForgotPassword.Disabled && c.ForgotPassword.Handler == nil {
		return ErrNoForgotPasswordHandler
	}
	if !c.ResetPassword.Disabled && c.ResetPassword.Handler == nil {
		return ErrNoResetPasswordHandler
	}
	return nil
}
