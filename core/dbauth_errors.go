package core

import (
	"errors"
	"strings"
)

// Configuration errors, returned by NewDbAuthHandler.
var (
	ErrNoSessionExpiration     = errors.New("dbauth: login.expires is missing")
	ErrNoLoginHandler          = errors.New("dbauth: login.handler is missing")
	ErrNoSignupHandler         = errors.New("dbauth: signup.handler is missing")
	ErrNoForgotPasswordHandler = errors.New("dbauth: forgotPassword.handler is missing")
	ErrNoResetPasswordHandler  = errors.New("dbauth: resetPassword.handler is missing")
)

// Client errors, rendered as 400 except ErrWrongVerb (404).
var (
	ErrWrongVerb                   = errors.New("wrong verb")
	ErrNotLoggedIn                 = errors.New("not logged in")
	ErrUserNotFound                = errors.New("user not found")
	ErrUsernameAndPasswordRequired = errors.New("username and password required")
	ErrIncorrectPassword           = errors.New("incorrect password")
	ErrNoUserID                    = errors.New("no user id")
	ErrFieldRequired               = errors.New("field required")
	ErrDuplicateUsername           = errors.New("duplicate username")
	ErrUsernameRequired            = errors.New("username required")
	ErrUsernameNotFound            = errors.New("username not found")
	ErrPasswordRequired            = errors.New("password required")
	ErrResetTokenRequired          = errors.New("reset token required")
	ErrResetTokenInvalid           = errors.New("reset token invalid")
	ErrResetTokenExpired           = errors.New("reset token expired")
	ErrReusedPassword              = errors.New("reused password")
	ErrCsrfTokenMismatch           = errors.New("csrf token mismatch")
	ErrFlowNotEnabled              = errors.New("flow not enabled")
	ErrGeneric                     = errors.New("generic error")
)

var defaultMessages = map[error]string{
	ErrWrongVerb:                   "Wrong HTTP verb",
	ErrNotLoggedIn:                 "Cannot retrieve user details without being logged in",
	ErrUserNotFound:                "User not found",
	ErrUsernameAndPasswordRequired: "Both username and password are required",
	ErrIncorrectPassword:           "Incorrect password for ${username}",
	ErrNoUserID:                    "Login handler must return a user with an id set",
	ErrFieldRequired:               "${field} is required",
	ErrDuplicateUsername:           "Username `${username}` already in use",
	ErrUsernameRequired:            "Username is required",
	ErrUsernameNotFound:            "Username '${username}' not found",
	ErrPasswordRequired:            "Password is required",
	ErrResetTokenRequired:          "resetToken is required",
	ErrResetTokenInvalid:           "resetToken is invalid",
	ErrResetTokenExpired:           "resetToken is expired",
	ErrReusedPassword:              "Must choose a new password",
	ErrCsrfTokenMismatch:           "CSRF token mismatch",
	ErrFlowNotEnabled:              "Flow is not enabled",
	ErrGeneric:                     "Something went wrong",
}

// DbAuthError is a client-facing error: Kind is one of the sentinels above and
// Message is what the response body carries.
type DbAuthError struct {
	Kind    error
	Message string
}

func (e *DbAuthError) Error() string {
	return e.Message
}

func (e *DbAuthError) Unwrap() error {
	return e.Kind
}

// newDbAuthError renders custom (or the default message for kind),
// substituting ${key} placeholders from vars given as key, value pairs.
func newDbAuthError(kind error, custom string, vars ...string) *DbAuthError {
	message := custom
	if message == "" {
		message = defaultMessages[kind]
	}
	for i := 0; i+1 < len(vars); i += 2 {
		message = strings.ReplaceAll(message, "${"+vars[i]+"}", vars[i+1])
	}
	return &DbAuthError{Kind: kind, Message: message}
}
