package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestlab/contest-pipeline/internal/config"
)

func TestBuild(t *testing.T) {
	t.Parallel()
	for _, name := range Known() {
		a, err := Build(name, config.SourceConfig{BaseURL: "https://example.test", Pages: 1}, Fetchers{}, nil)
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}
	_, err := Build("nope", config.SourceConfig{}, Fetchers{}, nil)
	assert.Error(t, err)
}

func TestEnabled(t *testing.T) {
	t.Parallel()
	names, skipped := Enabled(map[string]config.SourceConfig{
		"thinkyou":     {Enabled: true},
		"contestkorea": {Enabled: true},
		"linkareer":    {Enabled: false},
		"wevity":       {Enabled: true},
	})
	assert.Equal(t, []string{"contestkorea", "thinkyou"}, names)
	assert.Equal(t, []string{"wevity"}, skipped)
}

func TestKnown(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"contestkorea", "linkareer", "thinkyou"}, Known())
}
