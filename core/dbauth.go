package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthMethod names a dbAuth operation, selected by ?method= or the body's "method".
type AuthMethod string

const (
	MethodLogin              AuthMethod = "login"
	MethodSignup             AuthMethod = "signup"
	MethodLogout             AuthMethod = "logout"
	MethodForgotPassword     AuthMethod = "forgotPassword"
	MethodResetPassword      AuthMethod = "resetPassword"
	MethodValidateResetToken AuthMethod = "validateResetToken"
	MethodGetToken           AuthMethod = "getToken"
)

// methodVerbs is the required HTTP verb of every supported method.
var methodVerbs = map[AuthMethod]string{
	MethodLogin:              http.MethodPost,
	MethodSignup:             http.MethodPost,
	MethodLogout:             http.MethodPost,
	MethodForgotPassword:     http.MethodPost,
	MethodResetPassword:      http.MethodPost,
	MethodValidateResetToken: http.MethodPost,
	MethodGetToken:           http.MethodGet,
}

const HeaderCsrfToken = "csrf-token"

// DbAuthMetrics is satisfied by metrics.Metrics.
type DbAuthMetrics interface {
	ObserveRequest(method string, status int)
	ObservePasswordHash(start time.Time)
}

// DbAuthHandler is the first-party credential authority. It is built once
// from immutable configuration; all per-request data lives in authState.
type DbAuthHandler struct {
	config  *DbAuthConfig
	repo    Repository
	codec   *SessionCodec
	cors    *CorsContext
	cookies cookieStrategy
	logger  zerolog.Logger
	metrics DbAuthMetrics
	now     func() time.Time
}

type Option func(*DbAuthHandler)

func WithClock(now func() time.Time) Option {
	return func(h *DbAuthHandler) {
		h.now = now
	}
}

func WithMetrics(m DbAuthMetrics) Option {
	return func(h *DbAuthHandler) {
		h.metrics = m
	}
}

func NewDbAuthHandler(config *DbAuthConfig, repo Repository, logger zerolog.Logger, opts ...Option) (*DbAuthHandler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	codec, err := NewSessionCodec(config.SessionSecret)
	if err != nil {
		return nil, err
	}

	h := &DbAuthHandler{
		config:  config,
		repo:    repo,
		codec:   codec,
		cookies: newCookieStrategy(config, logger),
		logger:  logger,
		now:     time.Now,
	}
	if config.Cors != nil {
		h.cors = NewCorsContext(config.Cors)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// SessionCodec exposes the codec so the dbAuth decoder can share the key.
func (h *DbAuthHandler) SessionCodec() *SessionCodec {
	return h.codec
}

// authState is the parsed, read-only view of one request.
type authState struct {
	request           *Request
	params            map[string]any
	headerCsrfToken   string
	session           *SessionRecord
	sessionCsrfToken  string
	hasInvalidSession bool
}

// result is what an operation produces before it is rendered.
type result struct {
	body       any
	headers    map[string]string
	statusCode int
}

func (h *DbAuthHandler) parse(ev Event) (authState, error) {
	req, err := Normalize(ev)
	if err != nil {
		return authState{}, err
	}

	st := authState{
		request:         req,
		params:          req.Body,
		headerCsrfToken: req.Header(HeaderCsrfToken),
	}

	session, csrfToken, err := h.codec.DecryptSession(ParseSessionCookie(req.Header("Cookie")))
	if err != nil {
		// Logged out on the next invoke instead of failing the request.
		h.logger.Debug().Err(err).Msg("discarding undecryptable session cookie")
		st.hasInvalidSession = true
		return st, nil
	}
	st.session = session
	st.sessionCsrfToken = csrfToken
	return st, nil
}

// authMethod prefers the query string when it names a known method.
func (st authState) authMethod() AuthMethod {
	if name, ok := st.request.Query["method"]; ok {
		if _, known := methodVerbs[AuthMethod(name)]; known {
			return AuthMethod(name)
		}
	}
	if name, ok := st.params["method"].(string); ok {
		return AuthMethod(name)
	}
	return AuthMethod(st.request.Query["method"])
}

// Invoke runs one dbAuth request to completion. Errors are always rendered
// into the response.
func (h *DbAuthHandler) Invoke(ctx context.Context, ev Event) *Response {
	st, err := h.parse(ev)
	if err != nil {
		h.observe("", http.StatusBadRequest)
		return badRequest(err.Error())
	}

	var corsHeaders map[string]string
	if h.cors != nil {
		corsHeaders = h.cors.Headers(st.request)
		if h.cors.ShouldHandleCors(st.request) {
			return withCors(&Response{StatusCode: http.StatusOK, Headers: map[string]string{}}, corsHeaders)
		}
	}

	if st.hasInvalidSession {
		h.observe("", http.StatusOK)
		return withCors(h.ok(h.logoutResponse(nil)), corsHeaders)
	}

	method := st.authMethod()
	verb, known := methodVerbs[method]
	if !known || st.request.Method != verb {
		h.observe(string(method), http.StatusNotFound)
		return withCors(notFound(), corsHeaders)
	}

	res, err := h.dispatch(ctx, method, st)
	if err != nil {
		if errors.Is(err, ErrWrongVerb) {
			h.observe(string(method), http.StatusNotFound)
			return withCors(notFound(), corsHeaders)
		}
		h.observe(string(method), http.StatusBadRequest)
		return withCors(badRequest(err.Error()), corsHeaders)
	}

	resp := h.ok(res)
	h.observe(string(method), resp.StatusCode)
	return withCors(resp, corsHeaders)
}

func (h *DbAuthHandler) dispatch(ctx context.Context, method AuthMethod, st authState) (result, error) {
	if err := h.validateCsrf(method, st); err != nil {
		return result{}, err
	}

	switch method {
	case MethodLogin:
		return h.login(ctx, st)
	case MethodSignup:
		return h.signup(ctx, st)
	case MethodLogout:
		return h.logout(ctx, st)
	case MethodForgotPassword:
		return h.forgotPassword(ctx, st)
	case MethodResetPassword:
		return h.resetPassword(ctx, st)
	case MethodValidateResetToken:
		return h.validateResetToken(ctx, st)
	case MethodGetToken:
		return h.getToken(ctx, st)
	default:
		return result{}, ErrWrongVerb
	}
}

// validateCsrf applies only with EnforceCsrf, to POSTs that carry a live
// session. Login and signup start a new session and are exempt.
func (h *DbAuthHandler) validateCsrf(method AuthMethod, st authState) error {
	if !h.config.EnforceCsrf || st.session == nil || methodVerbs[method] != http.MethodPost {
		return nil
	}
	if method == MethodLogin || method == MethodSignup {
		return nil
	}
	if st.headerCsrfToken == "" || !constantTimeEqual(st.sessionCsrfToken, st.headerCsrfToken) {
		return newDbAuthError(ErrCsrfTokenMismatch, "")
	}
	return nil
}

func (h *DbAuthHandler) loginResponse(user *User, statusCode int) (result, error) {
	record := SessionRecord{ID: user.ID}
	csrfToken := uuid.NewString()

	encrypted, err := h.codec.EncryptSession(record, csrfToken)
	if err != nil {
		return result{}, fmt.Errorf("failed to encrypt session: %w", err)
	}

	expires := h.now().Add(time.Duration(h.config.Login.Expires) * time.Second).UTC().Format(http.TimeFormat)
	return result{
		body: record,
		headers: map[string]string{
			HeaderCsrfToken: csrfToken,
			"set-cookie":    buildCookie(h.cookies, encrypted, expires),
		},
		statusCode: statusCode,
	}, nil
}

func (h *DbAuthHandler) logoutResponse(body any) result {
	return result{
		body:       body,
		headers:    h.deleteSessionHeader(),
		statusCode: http.StatusOK,
	}
}

func (h *DbAuthHandler) deleteSessionHeader() map[string]string {
	return map[string]string{
		"set-cookie": buildCookie(h.cookies, "", pastExpires),
	}
}

func (h *DbAuthHandler) ok(res result) *Response {
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range res.headers {
		headers[k] = v
	}

	statusCode := res.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	var body string
	switch v := res.body.(type) {
	case nil:
	case string:
		body = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal dbAuth response body")
			return badRequest(newDbAuthError(ErrGeneric, "").Error())
		}
		body = string(data)
	}

	return &Response{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}
}

func (h *DbAuthHandler) observe(method string, status int) {
	if h.metrics == nil {
		return
	}
	if _, known := methodVerbs[AuthMethod(method)]; !known {
		method = "unknown"
	}
	h.metrics.ObserveRequest(method, status)
}

func notFound() *Response {
	return &Response{StatusCode: http.StatusNotFound, Headers: map[string]string{}}
}

func badRequest(message string) *Response {
	data, _ := json.Marshal(map[string]string{"error": message})
	return &Response{
		StatusCode: http.StatusBadRequest,
		Body:       string(data),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func withCors(resp *Response, corsHeaders map[string]string) *Response {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string, len(corsHeaders))
	}
	for k, v := range corsHeaders {
		resp.Headers[k] = v
	}
	return resp
}
