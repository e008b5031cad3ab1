package integration_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SessionResponse struct {
	ID string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MeResponse struct {
	Provider    string         `json:"provider"`
	Decoded     map[string]any `json:"decoded"`
	CurrentUser map[string]any `json:"currentUser"`
}

func callAuth(baseURL, verb string, body map[string]any, cookie string) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(verb, baseURL+"/auth", reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

func signup(baseURL, username, password string) (*http.Response, error) {
	return callAuth(baseURL, http.MethodPost, map[string]any{
		"method":   "signup",
		"username": username,
		"password": password,
	}, "")
}

func login(baseURL, username, password string) (*http.Response, error) {
	return callAuth(baseURL, http.MethodPost, map[string]any{
		"method":   "login",
		"username": username,
		"password": password,
	}, "")
}

func getToken(baseURL, cookie string) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/auth?method=getToken", nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return client.Do(req)
}

func logout(baseURL, cookie string) (*http.Response, error) {
	return callAuth(baseURL, http.MethodPost, map[string]any{"method": "logout"}, cookie)
}

func getMe(baseURL, cookie string) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/me", nil)
	req.Header.Set("auth-provider", "dbAuth")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return client.Do(req)
}

// sessionCookie returns the name=value pair of the response's session cookie.
func sessionCookie(resp *http.Response) string {
	pair, _, _ := strings.Cut(resp.Header.Get("Set-Cookie"), ";")
	return pair
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return string(data)
}

func parseSessionResponse(resp *http.Response) (*SessionResponse, error) {
	defer resp.Body.Close()
	var result SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func parseErrorResponse(resp *http.Response) (*ErrorResponse, error) {
	defer resp.Body.Close()
	var result ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func parseMeResponse(resp *http.Response) (*MeResponse, error) {
	defer resp.Body.Close()
	var result MeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func countUsers(dbPath string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// resetToken reads the pending reset token the daemon only writes to its log.
func resetToken(dbPath, username string) (string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var token sql.NullString
	err = db.QueryRow("SELECT reset_token FROM users WHERE username = ?", username).Scan(&token)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("no reset token for %s", username)
	}
	return token.String, nil
}

func cleanDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("DELETE FROM users")
	return err
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
