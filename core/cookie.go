package core

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// pastExpires is the Expires value of a cleared session cookie.
var pastExpires = time.Unix(0, 0).UTC().Format(http.TimeFormat)

// CookieAttribute is one directive of the session cookie. Value true renders
// a bare flag, false omits the directive, anything else renders key=value.
type CookieAttribute struct {
	Key   string
	Value any
}

// CookieAttributes preserves declaration order.
type CookieAttributes []CookieAttribute

func (c *CookieAttributes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("cookie attributes must be a mapping")
	}

	attrs := make(CookieAttributes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("cookie attribute %s: %w", node.Content[i].Value, err)
		}
		attrs = append(attrs, CookieAttribute{Key: node.Content[i].Value, Value: value})
	}
	*c = attrs
	return nil
}

// cookieStrategy renders cookie directives, excluding Expires.
type cookieStrategy interface {
	attributes() []string
}

// legacyCookieStrategy emits the fixed attribute set used when no cookie
// configuration is present.
type legacyCookieStrategy struct {
	domain      string
	development bool
	logger      zerolog.Logger
	warnOnce    sync.Once
}

func (s *legacyCookieStrategy) attributes() []string {
	s.warnOnce.Do(func() {
		s.logger.Warn().Msg("dbAuth cookie attributes are not configured; falling back to Path=/;HttpOnly;SameSite=Strict. " +
			"Set dbauth.cookie in the config file, this default will be removed")
	})

	meta := []string{"Path=/", "HttpOnly", "SameSite=Strict"}
	if !s.development {
		meta = append(meta, "Secure")
	}
	if s.domain != "" {
		meta = append(meta, "Domain="+s.domain)
	}
	return meta
}

type configuredCookieStrategy struct {
	attrs CookieAttributes
}

func (s *configuredCookieStrategy) attributes() []string {
	meta := make([]string, 0, len(s.attrs))
	for _, attr := range s.attrs {
		switch v := attr.Value.(type) {
		case bool:
			if v {
				meta = append(meta, attr.Key)
			}
		case nil:
			continue
		default:
			meta = append(meta, fmt.Sprintf("%s=%v", attr.Key, v))
		}
	}
	return meta
}

func newCookieStrategy(cfg *DbAuthConfig, logger zerolog.Logger) cookieStrategy {
	if len(cfg.Cookie) > 0 {
		return &configuredCookieStrategy{attrs: cfg.Cookie}
	}
	return &legacyCookieStrategy{
		domain:      cfg.CookieDomain,
		development: cfg.Development,
		logger:      logger,
	}
}

// buildCookie joins name=value, the strategy's directives and Expires with ";".
func buildCookie(strategy cookieStrategy, value, expires string) string {
	parts := append([]string{SessionCookieName + "=" + value}, strategy.attributes()...)
	parts = append(parts, "Expires="+expires)
	return strings.Join(parts, ";")
}
