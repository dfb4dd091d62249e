// Package featureflags evaluates on/off and percentage-rollout switches read
// from the FEATURE_FLAGS setting, e.g.
//
//	provider_dall-e-34=off,provider_gen-imager=25%,masonry=on
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// rule is one parsed flag. percent is the share of members that see the
// flag on: 100 for on, 0 for off and for values that do not parse.
type rule struct {
	raw     string
	percent int
	rollout bool
}

func parseRule(value string) rule {
	r := rule{raw: value}
	switch value {
	case "on", "true", "1":
		r.percent = 100
	case "off", "false", "0":
	default:
		if n, ok := strings.CutSuffix(value, "%"); ok {
			if pct, err := strconv.Atoi(n); err == nil {
				r.percent = min(max(pct, 0), 100)
				r.rollout = r.percent > 0 && r.percent < 100
			}
		}
	}
	return r
}

// Manager holds the flags parsed at startup. A nil *Manager answers every
// question with the caller's default.
type Manager struct {
	rules map[string]rule
}

// NewManager parses a comma-separated key=value list. Malformed pairs are
// skipped; names and values are case-insensitive.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = normalize(k), normalize(v)
		if !ok || k == "" || v == "" {
			continue
		}
		m.rules[k] = parseRule(v)
	}
	return m
}

// Enabled reports whether name is on for userID. Unset flags are off, and
// partial rollouts are off for anonymous callers.
func (m *Manager) Enabled(name, userID string) bool {
	return m.EnabledOr(name, userID, false)
}

// EnabledOr is Enabled with def returned for flags that are not configured.
func (m *Manager) EnabledOr(name, userID string, def bool) bool {
	if m == nil {
		return def
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok:
		return def
	case !r.rollout:
		return r.percent == 100
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// ProviderFlag names the flag that gates a generation provider.
func ProviderFlag(providerID string) string {
	return "provider_" + providerID
}

// ProviderEnabled reports whether a generation provider is offered. Providers
// are on unless a flag turns them off.
func (m *Manager) ProviderEnabled(providerID string) bool {
	return m.EnabledOr(ProviderFlag(providerID), "", true)
}

// Raw returns the configured values as written, keyed by normalized name.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for userID.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rolloutBucket places userID in [0, 100) for name, stable across restarts.
func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
