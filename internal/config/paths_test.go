package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathsCustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SUPPORTCHAT_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(tmp, "data", "transcripts.db"), paths.TranscriptDB())
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("SUPPORTCHAT_HOME", t.TempDir())

	paths, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())

	for _, d := range []string{paths.Base, paths.Data, paths.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "backend", []string{"backend"}, false},
		{"two segments", "backend.wsUrl", []string{"backend", "wsUrl"}, false},
		{"empty", "", nil, true},
		{"empty segment", "backend..wsUrl", nil, true},
		{"leading dot", ".backend", nil, true},
		{"trailing dot", "backend.", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSettable(t *testing.T) {
	assert.True(t, IsSettable("backend.wsUrl"))
	assert.True(t, IsSettable("transcript.enabled"))
	assert.False(t, IsSettable("backend"))
	assert.False(t, IsSettable("backend.unknown"))
}

func TestGetSetValueAtPath(t *testing.T) {
	root := map[string]any{
		"logging": map[string]any{"level": "warn"},
		"simple":  "value",
	}

	val, ok := GetValueAtPath(root, []string{"logging", "level"})
	assert.True(t, ok)
	assert.Equal(t, "warn", val)

	_, ok = GetValueAtPath(root, []string{"logging", "missing"})
	assert.False(t, ok)

	_, ok = GetValueAtPath(root, []string{"simple", "sub"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"logging", "level"}, "debug")
	val, _ = GetValueAtPath(root, []string{"logging", "level"})
	assert.Equal(t, "debug", val)

	SetValueAtPath(root, []string{"simple", "sub"}, 1)
	val, ok = GetValueAtPath(root, []string{"simple", "sub"})
	assert.True(t, ok)
	assert.Equal(t, 1, val)
}
