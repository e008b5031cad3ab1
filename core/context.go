package core

import (
	"context"
)

// CurrentUserFunc maps a decoded credential to the application's user.
type CurrentUserFunc func(ctx context.Context, decoded any, meta AuthMeta, in DecoderInput) (any, error)

type authContextKey struct{}
type currentUserContextKey struct{}

// BuildRequestContext attaches the auth payload and, when getCurrentUser is
// given and the credential decoded, the current user to ctx. The result is
// scoped to the one request.
func BuildRequestContext(ctx context.Context, in DecoderInput, auth *AuthContext, getCurrentUser CurrentUserFunc) (context.Context, error) {
	if auth == nil {
		return ctx, nil
	}

	ctx = context.WithValue(ctx, authContextKey{}, auth)
	if getCurrentUser == nil || auth.Decoded == nil {
		return ctx, nil
	}

	user, err := getCurrentUser(ctx, auth.Decoded, auth.Meta, in)
	if err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, currentUserContextKey{}, user), nil
}

func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return auth, ok
}

// CurrentUser returns the user attached by BuildRequestContext, or nil.
func CurrentUser(ctx context.Context) any {
	return ctx.Value(currentUserContextKey{})
}
