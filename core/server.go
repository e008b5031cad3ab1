package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Server struct {
	dbAuth         *DbAuthHandler
	resolver       *AuthContextResolver
	currentUser    CurrentUserFunc
	metricsHandler http.Handler
	logger         zerolog.Logger
}

type ServerOption func(*Server)

// WithCurrentUser sets the hook /me uses to turn a decoded credential into a user.
func WithCurrentUser(fn CurrentUserFunc) ServerOption {
	return func(s *Server) {
		s.currentUser = fn
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

func NewServer(dbAuth *DbAuthHandler, resolver *AuthContextResolver, logger zerolog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		dbAuth:   dbAuth,
		resolver: resolver,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.HandleHealth)
	r.Get("/me", s.HandleMe)
	r.Get("/auth", s.HandleAuth)
	r.Post("/auth", s.HandleAuth)
	r.Options("/auth", s.HandleAuth)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	return r
}

// HandleAuth serves the dbAuth endpoint. Method selection, verb checks and
// error rendering all happen inside the handler.
func (s *Server) HandleAuth(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, s.dbAuth.Invoke(r.Context(), FromHTTP(r)))
}

// HandleGatewayEvent serves the same endpoint for function-style hosting.
func (s *Server) HandleGatewayEvent(ctx context.Context, ev *GatewayEvent) *Response {
	return s.dbAuth.Invoke(ctx, FromGateway(ev))
}

// HandleMe resolves the request's credential and reports the current user.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	ev := FromHTTP(r)
	req, err := Normalize(ev)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	ctx := r.Context()
	auth, err := s.resolver.Resolve(ctx, ev, req)
	if err != nil {
		if errors.Is(err, ErrAuthorizationHeaderInvalid) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Warn().Err(err).Msg("failed to resolve auth context")
		respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}
	if auth == nil || auth.Decoded == nil {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "Not logged in")
		return
	}

	ctx, err = BuildRequestContext(ctx, DecoderInput{Event: ev, Request: req}, auth, s.currentUser)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(auth.Meta.Type)).Msg("failed to load current user")
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to get user info")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"provider":    auth.Meta.Type,
		"schema":      auth.Meta.Schema,
		"decoded":     auth.Decoded,
		"currentUser": CurrentUser(ctx),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// WriteResponse copies a Response onto w. Header names are canonicalized by
// net/http.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		event := s.logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query_method", strings.TrimSpace(r.URL.Query().Get("method"))).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
