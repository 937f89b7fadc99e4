// Package ratelimit enforces per-client request budgets with token
// buckets. Buckets live in redis so every replica sees the same budget;
// when redis is unreachable the limiter fails open and an in-process
// fallback keeps abusive clients bounded.
package ratelimit

import (
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Rule keys requests and assigns them a bucket shape. Source is "ip" or
// "header"; header rules skip requests missing the header.
type Rule struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Header    string  `json:"header,omitempty"`
	PerSecond float64 `json:"per_second"`
	Burst     int64   `json:"burst"`
}

func (r Rule) validate() error {
	switch r.Source {
	case "ip":
	case "header":
		if r.Header == "" {
			return errors.Errorf("rule %s: header source requires a header name", r.ID)
		}
	default:
		return errors.Errorf("rule %s: unknown source %q", r.ID, r.Source)
	}
	if r.ID == "" {
		return errors.New("rule without an id")
	}
	if r.PerSecond <= 0 || r.Burst <= 0 {
		return errors.Errorf("rule %s: per_second and burst must be positive", r.ID)
	}
	return nil
}

// Key extracts the bucket key for req, or "" when the rule does not apply.
func (r Rule) Key(req *http.Request) string {
	switch r.Source {
	case "header":
		v := req.Header.Get(r.Header)
		if v == "" {
			return ""
		}
		return r.ID + ":" + v
	default:
		return r.ID + ":" + clientIP(req)
	}
}

// clientIP prefers the first X-Forwarded-For hop, matching how the
// service is deployed behind a load balancer.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// LoadRules reads a yaml rule list.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read rate limit rules")
	}
	return ParseRules(raw)
}

// ParseRules decodes and validates yaml rules.
func ParseRules(raw []byte) ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, errors.Wrap(err, "could not parse rate limit rules")
	}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// DefaultRules applies when no rule file is configured: one bucket per
// client IP, a steady request per second with modest burst headroom.
func DefaultRules() []Rule {
	return []Rule{{ID: "ip", Source: "ip", PerSecond: 1, Burst: 30}}
}
