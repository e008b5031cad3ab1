package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dbauthd/core"
	"dbauthd/core/providers"
	"dbauthd/metrics"
	"dbauthd/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*core.Server, *core.DbAuthHandler) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dbAuth, repo := setupDbAuth(t, nil, core.WithMetrics(m))

	registry := core.NewDecoderRegistry(zerolog.Nop(), false)
	registry.Register(core.ProviderDbAuth, providers.NewDbAuthDecoder(dbAuth.SessionCodec(), zerolog.Nop()))
	registry.Register(providers.ProviderMock, providers.NewMockDecoder())

	currentUser := func(ctx context.Context, decoded any, meta core.AuthMeta, in core.DecoderInput) (any, error) {
		if meta.Type != core.ProviderDbAuth {
			return decoded, nil
		}
		user, err := repo.FindByID(ctx, decoded.(map[string]any)["id"].(string))
		if err != nil {
			return nil, err
		}
		return user.Sanitize(), nil
	}

	server := core.NewServer(dbAuth, core.NewAuthContextResolver(registry, m), zerolog.Nop(),
		core.WithCurrentUser(currentUser),
		core.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	return server, dbAuth
}

func makeRequest(method, path string, body interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var bodyReader *bytes.Reader

	switch v := body.(type) {
	case string:
		bodyReader = bytes.NewReader([]byte(v))
	case nil:
		bodyReader = bytes.NewReader([]byte{})
	default:
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	return req, w
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/health", nil)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleAuth_Login(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodPost, "/auth", map[string]string{
		"method":   "login",
		"username": storage.User1.Username,
		"password": storage.FixturePassword,
	})

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+storage.User1.ID+`"}`, w.Body.String())
	assert.Regexp(t, `^session=`, w.Header().Get("Set-Cookie"))
	assert.NotEmpty(t, w.Header().Get("Csrf-Token"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestHandleAuth_GetToken(t *testing.T) {
	server, dbAuth := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/auth?method=getToken", nil)
	req.Header.Set("Cookie", sessionCookie(t, dbAuth, storage.User1.ID, "csrf"))

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storage.User1.ID, w.Body.String())
}

func TestHandleAuth_WrongVerb(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/auth?method=login", nil)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAuth_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodPut, "/auth", nil)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleAuth_InvalidJSON(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodPost, "/auth", "invalid json")

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMe_DbAuthSession(t *testing.T) {
	server, dbAuth := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)
	req.Header.Set("auth-provider", string(core.ProviderDbAuth))
	req.Header.Set("Cookie", sessionCookie(t, dbAuth, storage.User1.ID, "csrf"))

	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Provider    string             `json:"provider"`
		Schema      string             `json:"schema"`
		Decoded     map[string]any     `json:"decoded"`
		CurrentUser core.SanitizedUser `json:"currentUser"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "dbAuth", resp.Provider)
	assert.Equal(t, core.SchemaCookie, resp.Schema)
	assert.Equal(t, storage.User1.ID, resp.Decoded["id"])
	assert.Equal(t, storage.User1.Username, resp.CurrentUser.Username)
}

func TestHandleMe_BearerToken(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)
	req.Header.Set("auth-provider", string(providers.ProviderMock))
	req.Header.Set("Authorization", "Bearer "+providers.ValidToken2)

	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, providers.Claims2, resp["currentUser"])
}

func TestHandleMe_Anonymous(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	assert.Equal(t, "unauthenticated", resp["error"])
}

func TestHandleMe_MalformedAuthHeader(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)
	req.Header.Set("auth-provider", string(providers.ProviderMock))
	req.Header.Set("Authorization", "Bearer")

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMe_InvalidToken(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)
	req.Header.Set("auth-provider", string(providers.ProviderMock))
	req.Header.Set("Authorization", "Bearer "+providers.InvalidToken)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	assert.Equal(t, "invalid_token", resp["error"])
}

func TestHandleMe_RejectedToken(t *testing.T) {
	server, _ := setupTestServer(t)
	req, w := makeRequest(http.MethodGet, "/me", nil)
	req.Header.Set("auth-provider", string(providers.ProviderMock))
	req.Header.Set("Authorization", "Bearer "+providers.RejectToken)

	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t)
	router := server.Router()

	req, w := makeRequest(http.MethodPost, "/auth", map[string]string{"method": "logout"})
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req, w = makeRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `dbauth_requests_total{method="logout",status="200"} 1`)
}

func TestHandleGatewayEvent(t *testing.T) {
	server, _ := setupTestServer(t)
	body := `{"method":"login","username":"alice@example.com","password":"password"}`

	resp := server.HandleGatewayEvent(context.Background(), &core.GatewayEvent{
		HTTPMethod: http.MethodPost,
		Body:       &body,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Headers["set-cookie"])
}

func TestWriteResponse(t *testing.T) {
	w := httptest.NewRecorder()

	core.WriteResponse(w, &core.Response{
		StatusCode: http.StatusCreated,
		Body:       `{"ok":true}`,
		Headers:    map[string]string{"set-cookie": "session=abc", "Content-Type": "application/json"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "session=abc", w.Header().Get("Set-Cookie"))
	assert.Equal(t, `{"ok":true}`, w.Body.String())
}
