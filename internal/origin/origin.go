// Package origin decides which browser origins may reach a local HTTP
// surface: the control API and the development relay's websocket.
package origin

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates a browser Origin header value. It returns the
// normalized origin (scheme://host[:port]) and its host[:port] part. Default
// ports are dropped. The opaque origin "null" is returned as-is.
func Normalize(raw string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Policy is an origin allowlist. The zero Policy allows same-host requests
// only.
type Policy struct {
	any     bool
	allowed map[string]struct{}
}

// NewPolicy builds a Policy from configured origins. "*" allows every
// origin; other entries must be valid http(s) origins.
func NewPolicy(origins []string) (Policy, error) {
	p := Policy{}
	for _, raw := range origins {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if raw == "*" {
			p.any = true
			continue
		}
		normalized, _, ok := Normalize(raw)
		if !ok || normalized == "null" {
			return Policy{}, fmt.Errorf("invalid allowed origin %q", raw)
		}
		if p.allowed == nil {
			p.allowed = map[string]struct{}{}
		}
		p.allowed[normalized] = struct{}{}
	}
	return p, nil
}

// AllowAll is the policy used by the development relay.
func AllowAll() Policy { return Policy{any: true} }

// Allow reports whether r may proceed. Requests without an Origin header come
// from non-browser clients and are allowed.
func (p Policy) Allow(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	if p.any {
		return true
	}
	normalized, host, ok := Normalize(raw)
	if !ok || normalized == "null" {
		return false
	}
	if _, ok := p.allowed[normalized]; ok {
		return true
	}

	// Same host:port. Scheme is not compared since a TLS-terminating proxy may
	// present an https page to a plain http listener.
	scheme, _, _ := strings.Cut(normalized, "://")
	reqHost, ok := normalizeHost(strings.ToLower(strings.TrimSpace(r.Host)), scheme)
	return ok && host == reqHost
}

// Middleware rejects requests the policy does not allow with 403.
func (p Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Allow(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func normalizeHost(authority, scheme string) (string, bool) {
	rawHostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}
	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]. IPv6 literals come back without
// brackets; the port is not validated.
func splitHostPort(raw string) (hostname, port string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest := raw[1:end], raw[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}
	switch strings.Count(raw, ":") {
	case 0:
		return raw, "", true
	case 1:
		h, p, _ := strings.Cut(raw, ":")
		if h == "" || p == "" {
			return "", "", false
		}
		return h, p, true
	default:
		return "", "", false
	}
}
