// Package publish builds a deployable copy of the viewer site.
//
// The local editing deployment and the public read-only deployment are both
// produced from the same site directory; only viewer.json differs.
package publish

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pbaille/drift/internal/quotes"
	"go.uber.org/zap"
)

// ViewerConfigFile is read by the viewer at startup
const ViewerConfigFile = "viewer.json"

// DefaultExcludes are never published
var DefaultExcludes = []string{
	"**/.*",
	"covers/pending/**",
	ViewerConfigFile,
}

// Options configures a publish run
type Options struct {
	SiteDir string
	OutDir  string

	// Editable turns on the viewer's editing UI
	Editable bool

	// Exclude holds extra doublestar patterns relative to SiteDir
	Exclude []string

	Logger *zap.Logger

	now func() time.Time
}

// ViewerConfig is the content of viewer.json
type ViewerConfig struct {
	Editable    bool      `json:"editable"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report summarizes a publish run
type Report struct {
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
	Skipped int   `json:"skipped"`
}

// Publish copies the site into OutDir and writes viewer.json
func Publish(opts Options) (Report, error) {
	var report Report
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	site, err := filepath.Abs(opts.SiteDir)
	if err != nil {
		return report, err
	}
	out, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return report, err
	}
	if out == site || strings.HasPrefix(out, site+string(filepath.Separator)) {
		return report, fmt.Errorf("output dir %s is inside the site dir", opts.OutDir)
	}
	if _, err := os.Stat(filepath.Join(site, "quotes.json")); err != nil {
		return report, fmt.Errorf("site dir %s: %w", opts.SiteDir, err)
	}

	excludes := append(append([]string{}, DefaultExcludes...), opts.Exclude...)
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return report, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	err = filepath.WalkDir(site, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(site, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(excludes, rel) {
			report.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		n, err := copyFile(path, filepath.Join(out, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		report.Files++
		report.Bytes += n
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("copy site: %w", err)
	}

	cfg := ViewerConfig{Editable: opts.Editable, GeneratedAt: opts.now().UTC()}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return report, err
	}
	if err := quotes.WriteFileAtomic(filepath.Join(out, ViewerConfigFile), append(data, '\n')); err != nil {
		return report, fmt.Errorf("write viewer config: %w", err)
	}

	logger.Info("published site",
		zap.String("out", opts.OutDir),
		zap.Bool("editable", opts.Editable),
		zap.Int("files", report.Files),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// ReadViewerConfig loads viewer.json from a published directory
func ReadViewerConfig(dir string) (ViewerConfig, error) {
	var cfg ViewerConfig
	data, err := os.ReadFile(filepath.Join(dir, ViewerConfigFile))
	if err != nil {
		return cfg, err
	}
	err = json.Unmarshal(data, &cfg)
	return cfg, err
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(outFile, in)
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	return n, err
}
