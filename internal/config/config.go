// Package config provides configuration loading for the drift pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is looked up in the working directory
	ProjectConfigFile = "drift.yaml"
	// UserConfigDir is the directory for user-level config, relative to home
	UserConfigDir = ".config/drift"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Config represents the complete drift configuration
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Weighting WeightingConfig `yaml:"weighting"`
	Graph     GraphConfig     `yaml:"graph"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Server    ServerConfig    `yaml:"server"`
	DBPath    string          `yaml:"db_path"`
}

// SiteConfig locates the viewer's data files
type SiteConfig struct {
	// Dir is the site root; relative paths below resolve against it
	Dir         string `yaml:"dir"`
	Quotes      string `yaml:"quotes"`
	CSV         string `yaml:"csv"`
	Connections string `yaml:"connections"`
	PrimaryTags string `yaml:"primary_tags"`
	Covers      string `yaml:"covers"`
}

// WeightingConfig configures tag weighting
type WeightingConfig struct {
	ExcludedTags []string `yaml:"excluded_tags"`
}

// GraphConfig configures tag connection building
type GraphConfig struct {
	TopK            int     `yaml:"top_k"`
	ReciprocalRatio float64 `yaml:"reciprocal_ratio"`
}

// ExtractorConfig selects the vision model
type ExtractorConfig struct {
	// Provider is "anthropic" or "gemini"
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// ReviewThreshold flags extracted quotes below this confidence
	ReviewThreshold float64 `yaml:"review_threshold"`
}

// ServerConfig configures the edit server
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ReadOnly disables the editing endpoints
	ReadOnly bool `yaml:"read_only"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Site: SiteConfig{
			Dir:         "site",
			Quotes:      "quotes.json",
			CSV:         "quotes.csv",
			Connections: "tag_connections.json",
			PrimaryTags: "primary_tags.txt",
			Covers:      "covers",
		},
		Weighting: WeightingConfig{
			ExcludedTags: []string{"book", "pithy", "quote", "people", "trump", "word"},
		},
		Graph: GraphConfig{
			TopK:            5,
			ReciprocalRatio: 2.0,
		},
		Extractor: ExtractorConfig{
			Provider:        "anthropic",
			ReviewThreshold: 0.7,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		DBPath: filepath.Join(home, ".drift", "ledger.db"),
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Site.Dir == "" {
		return fmt.Errorf("site.dir is required")
	}
	if c.Site.Quotes == "" {
		return fmt.Errorf("site.quotes is required")
	}
	if c.Graph.TopK < 1 {
		return fmt.Errorf("graph.top_k must be at least 1")
	}
	if c.Graph.ReciprocalRatio < 1 {
		return fmt.Errorf("graph.reciprocal_ratio must be at least 1")
	}
	switch c.Extractor.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("extractor.provider must be anthropic or gemini, got %q", c.Extractor.Provider)
	}
	if c.Extractor.ReviewThreshold < 0 || c.Extractor.ReviewThreshold > 1 {
		return fmt.Errorf("extractor.review_threshold must be between 0 and 1")
	}
	return nil
}

// Path resolves a site-relative file name against the site dir
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Site.Dir, name)
}

// QuotesPath returns the resolved quotes.json path
func (c *Config) QuotesPath() string { return c.Path(c.Site.Quotes) }

// CSVPath returns the resolved CSV export path
func (c *Config) CSVPath() string { return c.Path(c.Site.CSV) }

// ConnectionsPath returns the resolved tag connection file path
func (c *Config) ConnectionsPath() string { return c.Path(c.Site.Connections) }

// PrimaryTagsPath returns the resolved allow-list path
func (c *Config) PrimaryTagsPath() string { return c.Path(c.Site.PrimaryTags) }

// CoversDir returns the resolved cover image directory
func (c *Config) CoversDir() string { return c.Path(c.Site.Covers) }

// overlayFile decodes a YAML file onto cfg; keys absent from the file
// leave cfg untouched.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
