package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "u-1"), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, "u-1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=abc%")

	assert.True(t, m.Enabled("always", ""))
	assert.False(t, m.Enabled("never", "u-1"))
	assert.False(t, m.Enabled("junk", "u-1"))

	first := m.Enabled("canary", "u-42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "u-42"), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", ""), "anonymous viewers are outside partial rollouts")
}

func TestDefaultsAndOverrides(t *testing.T) {
	m := NewManager("")
	assert.True(t, m.Enabled(FriendsFeed, ""))
	assert.True(t, m.Enabled(RealtimeInbox, ""))
	assert.True(t, m.Enabled(ShareQR, ""))

	m = NewManager("SHARE_QR = off")
	assert.False(t, m.Enabled(ShareQR, "u-1"))
	assert.True(t, m.Enabled(FriendsFeed, "u-1"))
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off ")

	raw := m.Raw()
	assert.Len(t, raw, 3+len(Defaults))
	assert.Equal(t, "on", raw["x"])
	assert.Equal(t, "20%", raw["y"])
	assert.Equal(t, "off", raw["z"])

	raw["x"] = "off"
	assert.True(t, m.Enabled("x", "u-1"), "Raw must return a copy")

	snap := m.Snapshot("u-123")
	assert.Len(t, snap, 3+len(Defaults))
	assert.False(t, snap["z"])
}
