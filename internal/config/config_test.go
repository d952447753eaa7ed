package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "site", cfg.Site.Dir)
	assert.Equal(t, 5, cfg.Graph.TopK)
	assert.Equal(t, "anthropic", cfg.Extractor.Provider)
	assert.Contains(t, cfg.Weighting.ExcludedTags, "pithy")
	assert.False(t, cfg.Server.ReadOnly)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "missing site dir", modify: func(c *Config) { c.Site.Dir = "" }, wantErr: true},
		{name: "missing quotes file", modify: func(c *Config) { c.Site.Quotes = "" }, wantErr: true},
		{name: "top k zero", modify: func(c *Config) { c.Graph.TopK = 0 }, wantErr: true},
		{name: "ratio below one", modify: func(c *Config) { c.Graph.ReciprocalRatio = 0.5 }, wantErr: true},
		{name: "unknown provider", modify: func(c *Config) { c.Extractor.Provider = "openai" }, wantErr: true},
		{name: "gemini provider", modify: func(c *Config) { c.Extractor.Provider = "gemini" }},
		{name: "threshold too high", modify: func(c *Config) { c.Extractor.ReviewThreshold = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Site.Dir = "public"

	assert.Equal(t, filepath.Join("public", "quotes.json"), cfg.QuotesPath())
	assert.Equal(t, filepath.Join("public", "covers"), cfg.CoversDir())

	cfg.Site.Connections = "/abs/conn.json"
	assert.Equal(t, "/abs/conn.json", cfg.ConnectionsPath())
}

func TestLoaderExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  top_k: 8\n"), 0644))

	l := NewLoader(nil)
	l.homeDir = t.TempDir()

	cfg, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Graph.TopK)
	assert.Equal(t, 2.0, cfg.Graph.ReciprocalRatio, "unset keys keep defaults")
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	userDir := filepath.Join(home, UserConfigDir)
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, UserConfigFile),
		[]byte("graph:\n  top_k: 8\nserver:\n  read_only: true\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(work, ProjectConfigFile),
		[]byte("site:\n  dir: public\n"), 0644))

	l := NewLoader(nil)
	l.homeDir = home
	l.workDir = work

	cfg, err := l.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Graph.TopK, "user layer survives project layer")
	assert.Equal(t, "public", cfg.Site.Dir)
	assert.True(t, cfg.Server.ReadOnly)
}

func TestLoaderExplicitMissing(t *testing.T) {
	l := NewLoader(nil)
	l.homeDir = t.TempDir()

	_, err := l.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoaderRejectsInvalid(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, ProjectConfigFile),
		[]byte("extractor:\n  provider: mystery\n"), 0644))

	l := NewLoader(nil)
	l.homeDir = t.TempDir()
	l.workDir = work

	_, err := l.Load("")
	assert.Error(t, err)
}
