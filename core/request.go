package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrInvalidRequestBody = errors.New("invalid request body")

// EventKind discriminates the inbound request shapes accepted by Normalize.
type EventKind int

const (
	EventGateway EventKind = iota + 1
	EventHTTP
)

// GatewayEvent is the structured event delivered by function-style hosts.
type GatewayEvent struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path,omitempty"`
	Headers               map[string]string `json:"headers"`
	Body                  *string           `json:"body"`
	IsBase64Encoded       bool              `json:"isBase64Encoded"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	// ClientContext holds identity injected by the hosting platform, if any.
	ClientContext map[string]any `json:"clientContext,omitempty"`
}

// Event is built once at the transport boundary. Exactly one of Gateway or
// HTTP is set, according to Kind.
type Event struct {
	Kind    EventKind
	Gateway *GatewayEvent
	HTTP    *http.Request
}

func FromGateway(ev *GatewayEvent) Event {
	return Event{Kind: EventGateway, Gateway: ev}
}

func FromHTTP(r *http.Request) Event {
	return Event{Kind: EventHTTP, HTTP: r}
}

// Request is the canonical request value shared by the resolver and the dbAuth handler.
type Request struct {
	Method  string
	Headers http.Header
	Query   map[string]string
	Body    map[string]any
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

func Normalize(ev Event) (*Request, error) {
	switch ev.Kind {
	case EventGateway:
		if ev.Gateway == nil {
			return nil, fmt.Errorf("gateway event is nil")
		}
		return normalizeGateway(ev.Gateway)
	case EventHTTP:
		if ev.HTTP == nil {
			return nil, fmt.Errorf("http request is nil")
		}
		return normalizeHTTP(ev.HTTP)
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func normalizeGateway(ev *GatewayEvent) (*Request, error) {
	headers := make(http.Header, len(ev.Headers))
	for k, v := range ev.Headers {
		headers.Set(k, v)
	}

	body, err := gatewayBody(ev)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:  strings.ToUpper(ev.HTTPMethod),
		Headers: headers,
		Query:   ev.QueryStringParameters,
		Body:    body,
	}, nil
}

func gatewayBody(ev *GatewayEvent) (map[string]any, error) {
	if ev.Body == nil {
		return map[string]any{}, nil
	}

	raw := *ev.Body
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequestBody, err)
		}
		raw = string(decoded)
	}

	return parseJSONBody(raw)
}

func normalizeHTTP(r *http.Request) (*Request, error) {
	var query map[string]string
	if values := r.URL.Query(); len(values) > 0 {
		query = make(map[string]string, len(values))
		for k, v := range values {
			query[k] = v[0]
		}
	}

	var raw string
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		// Leave the body readable for anything downstream.
		r.Body = io.NopCloser(bytes.NewReader(data))
		raw = string(data)
	}

	body, err := parseJSONBody(raw)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:  strings.ToUpper(r.Method),
		Headers: r.Header.Clone(),
		Query:   query,
		Body:    body,
	}, nil
}

func parseJSONBody(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequestBody, err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}
