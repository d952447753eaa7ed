// Package pipeline runs the image-to-quote extraction over a batch of files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/embedding"
	"github.com/pbaille/drift/internal/extractor"
	"github.com/pbaille/drift/internal/quotes"
	"github.com/pbaille/drift/internal/store"
	"go.uber.org/zap"
)

// Embedder produces the vectors used for near-duplicate detection
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Options configures an extraction run
type Options struct {
	// Patterns are doublestar globs, e.g. "scans/**/*.jpg"
	Patterns []string

	QuotesPath string
	CSVPath    string

	// Force re-extracts images already recorded in the ledger
	Force bool

	ReviewThreshold float64

	Extractor extractor.Extractor
	Ledger    *store.Store
	// Embedder is optional; without it only exact duplicates are detected
	Embedder Embedder

	Logger *zap.Logger
}

// Result is the outcome for one image
type Result struct {
	Path        string `json:"path"`
	QuoteID     int    `json:"quote_id,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	DuplicateOf int    `json:"duplicate_of,omitempty"`
}

// Result statuses beyond the ledger's
const StatusSkipped = "skipped"

// Report summarizes an extraction run
type Report struct {
	RunID   string   `json:"run_id"`
	Added   int      `json:"added"`
	Review  int      `json:"review"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results"`
}

// Expand resolves glob patterns to a sorted, de-duplicated file list
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run extracts every matched image in order, one API call per image. An
// API failure is recorded against the image and the run moves on; the
// quote file is saved after each added quote.
func Run(ctx context.Context, opts Options) (Report, error) {
	var report Report
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReviewThreshold == 0 {
		opts.ReviewThreshold = extractor.DefaultReviewThreshold
	}

	files, err := Expand(opts.Patterns)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		return report, fmt.Errorf("no files match %v", opts.Patterns)
	}

	coll, _, err := quotes.Load(opts.QuotesPath, logger)
	if errors.Is(err, fs.ErrNotExist) {
		coll = quotes.NewCollection(nil)
	} else if err != nil {
		return report, err
	}

	run, err := opts.Ledger.StartRun(opts.Extractor.Name(), opts.Extractor.Model())
	if err != nil {
		return report, err
	}
	report.RunID = run.ID
	logger.Info("extraction started",
		zap.String("run", run.ID),
		zap.String("provider", run.Provider),
		zap.Int("files", len(files)))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		res := processImage(ctx, opts, coll, run, path, logger)
		switch res.Status {
		case StatusSkipped:
			report.Skipped++
		case store.StatusFailed:
			report.Failed++
		case store.StatusReview:
			report.Added++
			report.Review++
		case store.StatusExtracted:
			report.Added++
		}
		report.Results = append(report.Results, res)
	}

	run.Processed = report.Added
	run.Failed = report.Failed
	if err := opts.Ledger.FinishRun(run); err != nil {
		return report, err
	}
	logger.Info("extraction finished",
		zap.String("run", run.ID),
		zap.Int("added", report.Added),
		zap.Int("review", report.Review),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, ctx.Err()
}

func processImage(ctx context.Context, opts Options, coll *quotes.Collection, run *store.Run, path string, logger *zap.Logger) Result {
	res := Result{Path: path}

	img, err := extractor.LoadImage(path)
	if err != nil {
		logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
		res.Status, res.Error = StatusSkipped, err.Error()
		return res
	}
	sha := img.SHA256()

	if !opts.Force {
		rec, err := opts.Ledger.GetImage(sha)
		if err != nil {
			res.Status, res.Error = store.StatusFailed, err.Error()
			return res
		}
		if rec != nil && rec.Status != store.StatusFailed {
			logger.Debug("already extracted", zap.String("path", path), zap.String("sha256", sha))
			res.Status = StatusSkipped
			if rec.QuoteID != nil {
				res.QuoteID = *rec.QuoteID
			}
			return res
		}
	}

	fail := func(err error) Result {
		logger.Warn("extraction failed", zap.String("path", path), zap.Error(err))
		res.Status, res.Error = store.StatusFailed, err.Error()
		if lerr := opts.Ledger.RecordImage(store.ImageRecord{
			SHA256: sha, Path: path, RunID: run.ID, Status: store.StatusFailed, Notes: err.Error(),
		}); lerr != nil {
			logger.Error("ledger write failed", zap.String("path", path), zap.Error(lerr))
		}
		return res
	}

	q, err := opts.Extractor.Extract(ctx, img)
	if err != nil {
		return fail(err)
	}
	q.SourceImage = path
	extractor.Validate(q, opts.ReviewThreshold)

	var vector []float64
	if dup := exactDuplicate(coll, q.Text); dup > 0 {
		flagDuplicate(q, dup, 1)
		res.DuplicateOf = dup
	}
	if opts.Embedder != nil && q.Text != "" {
		vector, err = opts.Embedder.Embed(ctx, q.Text)
		if err != nil {
			logger.Warn("embedding failed", zap.String("path", path), zap.Error(err))
		} else if res.DuplicateOf == 0 {
			similar, err := opts.Ledger.FindSimilar(vector, 1, 0)
			if err == nil && len(similar) > 0 && similar[0].Similarity >= embedding.DuplicateThreshold {
				flagDuplicate(q, similar[0].QuoteID, similar[0].Similarity)
				res.DuplicateOf = similar[0].QuoteID
			}
		}
	}

	next := coll.Clone()
	added := next.Append(*q)
	if err := next.Save(opts.QuotesPath); err != nil {
		return fail(fmt.Errorf("save quotes: %w", err))
	}
	*coll = *next
	if opts.CSVPath != "" {
		if err := coll.SaveCSV(opts.CSVPath); err != nil {
			logger.Warn("csv export failed", zap.String("path", opts.CSVPath), zap.Error(err))
		}
	}
	if vector != nil {
		if err := opts.Ledger.SaveEmbedding(added.ID, vector, opts.Embedder.Model()); err != nil {
			logger.Warn("saving embedding failed", zap.Int("id", added.ID), zap.Error(err))
		}
	}

	res.QuoteID = added.ID
	res.Status = store.StatusExtracted
	if added.NeedsReview {
		res.Status = store.StatusReview
	}
	if err := opts.Ledger.RecordImage(store.ImageRecord{
		SHA256: sha, Path: path, RunID: run.ID, QuoteID: &added.ID, Status: res.Status, Notes: added.Notes,
	}); err != nil {
		logger.Error("ledger write failed", zap.String("path", path), zap.Error(err))
	}

	logger.Info("quote extracted",
		zap.String("path", path),
		zap.Int("id", added.ID),
		zap.String("author", added.Author),
		zap.Float64("confidence", added.Confidence),
		zap.Bool("needs_review", added.NeedsReview))
	return res
}

func exactDuplicate(coll *quotes.Collection, text string) int {
	norm := embedding.NormalizeText(text)
	if norm == "" {
		return 0
	}
	for _, q := range coll.All() {
		if embedding.NormalizeText(q.Text) == norm {
			return q.ID
		}
	}
	return 0
}

func flagDuplicate(q *domain.Quote, id int, similarity float64) {
	note := fmt.Sprintf("possible duplicate of #%d", id)
	if similarity < 1 {
		note += fmt.Sprintf(" (similarity %.2f)", similarity)
	}
	q.NeedsReview = true
	if q.Notes == "" {
		q.Notes = note
	} else {
		q.Notes += "; " + note
	}
}
