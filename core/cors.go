package core

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CorsOrigin is either reflect-any, an allow-list, or a fixed origin string.
type CorsOrigin struct {
	Any   bool
	List  []string
	Value string
}

func (o CorsOrigin) isSet() bool {
	return o.Any || len(o.List) > 0 || o.Value != ""
}

// UnmarshalYAML accepts `true`, a single origin string, or a list of origins.
func (o *CorsOrigin) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!bool" {
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*o = CorsOrigin{Any: b}
			return nil
		}
		*o = CorsOrigin{Value: node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*o = CorsOrigin{List: list}
		return nil
	default:
		return fmt.Errorf("cors origin must be a bool, string or list")
	}
}

type CorsConfig struct {
	Origin         CorsOrigin `yaml:"origin"`
	Methods        []string   `yaml:"methods"`
	AllowedHeaders []string   `yaml:"allowed_headers"`
	ExposedHeaders []string   `yaml:"exposed_headers"`
	Credentials    bool       `yaml:"credentials"`
	MaxAge         *int       `yaml:"max_age"`
}

const (
	headerAllowMethods     = "access-control-allow-methods"
	headerAllowHeaders     = "access-control-allow-headers"
	headerExposeHeaders    = "access-control-expose-headers"
	headerAllowCredentials = "access-control-allow-credentials"
	headerMaxAge           = "access-control-max-age"
	headerAllowOrigin      = "access-control-allow-origin"
)

// CorsContext holds the static CORS headers computed once from configuration.
type CorsContext struct {
	config *CorsConfig
	static map[string]string
}

func NewCorsContext(config *CorsConfig) *CorsContext {
	static := make(map[string]string)
	if config != nil {
		if len(config.Methods) > 0 {
			static[headerAllowMethods] = strings.Join(config.Methods, ",")
		}
		if len(config.AllowedHeaders) > 0 {
			static[headerAllowHeaders] = strings.Join(config.AllowedHeaders, ",")
		}
		if len(config.ExposedHeaders) > 0 {
			static[headerExposeHeaders] = strings.Join(config.ExposedHeaders, ",")
		}
		if config.Credentials {
			static[headerAllowCredentials] = "true"
		}
		if config.MaxAge != nil {
			static[headerMaxAge] = strconv.Itoa(*config.MaxAge)
		}
	}

	return &CorsContext{
		config: config,
		static: static,
	}
}

func (c *CorsContext) ShouldHandleCors(req *Request) bool {
	return req.Method == http.MethodOptions
}

// Headers returns the CORS headers for req. The returned map is a fresh copy.
func (c *CorsContext) Headers(req *Request) map[string]string {
	headers := make(map[string]string, len(c.static)+2)
	for k, v := range c.static {
		headers[k] = v
	}

	if c.config == nil || !c.config.Origin.isSet() {
		return headers
	}

	origin := c.config.Origin
	requestOrigin := req.Header("Origin")
	switch {
	case origin.Value != "":
		headers[headerAllowOrigin] = origin.Value
	case requestOrigin != "" && (origin.Any || slices.Contains(origin.List, requestOrigin)):
		headers[headerAllowOrigin] = requestOrigin
	}

	if requested := req.Header("Access-Control-Request-Headers"); len(c.config.AllowedHeaders) == 0 && requested != "" {
		headers[headerAllowHeaders] = requested
	}

	return headers
}
