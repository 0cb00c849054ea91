// Package featureflags evaluates shell feature toggles from a key=value list.
package featureflags

import (
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flags gating parts of the web shell.
const (
	FriendsFeed   = "friends_feed"
	RealtimeInbox = "realtime_inbox"
	ShareQR       = "share_qr"
)

// Defaults apply to known flags the configuration does not mention.
var Defaults = map[string]string{
	FriendsFeed:   "on",
	RealtimeInbox: "on",
	ShareQR:       "on",
}

// rollout is a parsed flag value: the share of signed-in users it reaches.
// 100 reaches everyone including anonymous viewers; 0 reaches nobody.
type rollout struct {
	raw     string
	percent int
}

func parseRollout(value string) rollout {
	r := rollout{raw: value}
	switch value {
	case "on", "true", "1":
		r.percent = 100
	case "off", "false", "0":
	default:
		if n, err := strconv.Atoi(strings.TrimSuffix(value, "%")); err == nil && strings.HasSuffix(value, "%") {
			r.percent = min(max(n, 0), 100)
		}
	}
	return r
}

// Manager holds flags parsed from a list such as
// "friends_feed=on,realtime_inbox=25%,share_qr=off". Names are case-insensitive.
type Manager struct {
	flags map[string]rollout
}

// NewManager layers raw over Defaults. Malformed pairs are ignored and
// unparseable values count as off.
func NewManager(raw string) *Manager {
	values := maps.Clone(Defaults)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key, value = normalize(key), normalize(value)
		if ok && key != "" && value != "" {
			values[key] = value
		}
	}

	m := &Manager{flags: make(map[string]rollout, len(values))}
	for name, value := range values {
		m.flags[name] = parseRollout(value)
	}
	return m
}

// Enabled reports whether name is on for userID. Partial rollouts bucket
// users deterministically and never include anonymous viewers.
func (m *Manager) Enabled(name string, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.flags[normalize(name)]
	switch {
	case !ok || r.percent <= 0:
		return false
	case r.percent >= 100:
		return true
	case userID == "":
		return false
	}
	return bucket(name, userID) < r.percent
}

// Raw returns the configured values.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for name, r := range m.flags {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every flag for userID, for view models.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
