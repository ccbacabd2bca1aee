package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	assert.Equal(t, BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}, info)
}

func TestNewBuildInfoOverride(t *testing.T) {
	prevV, prevC := version, commit
	t.Cleanup(func() { version, commit = prevV, prevC })

	version, commit = "1.4.0", "abc1234"
	info := NewBuildInfo()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc1234", info.Commit)
}
