package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/drift/internal/embedding"
)

//go:embed schema.sql
var schema string

// Image statuses recorded in the ledger
const (
	StatusExtracted = "extracted"
	StatusReview    = "review"
	StatusFailed    = "failed"
)

// Run is one `drift extract` invocation
type Run struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
}

// ImageRecord is the ledger entry of a processed image
type ImageRecord struct {
	SHA256      string    `json:"sha256"`
	Path        string    `json:"path"`
	RunID       string    `json:"run_id"`
	QuoteID     *int      `json:"quote_id,omitempty"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SimilarQuote is a stored quote close to a query vector
type SimilarQuote struct {
	QuoteID    int     `json:"quote_id"`
	Similarity float64 `json:"similarity"`
}

// Store is the extraction ledger: which images were processed, by which
// run, and the embeddings used to spot duplicate quotes.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new extraction run
func (s *Store) StartRun(provider, model string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Provider:  provider,
		Model:     model,
		StartedAt: time.Now(),
	}

	_, err := s.db.Exec(
		"INSERT INTO runs (id, provider, model, started_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Provider, run.Model, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of a run
func (s *Store) FinishRun(run *Run) error {
	now := time.Now()
	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, processed = ?, failed = ? WHERE id = ?",
		now, run.Processed, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	run.FinishedAt = &now
	return nil
}

// ListRuns returns recent runs, newest first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		"SELECT id, provider, model, started_at, finished_at, processed, failed FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordImage inserts or replaces the ledger entry of an image
func (s *Store) RecordImage(rec ImageRecord) error {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO images (sha256, path, run_id, quote_id, status, notes, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.SHA256, rec.Path, rec.RunID, rec.QuoteID, rec.Status, rec.Notes, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("record image: %w", err)
	}
	return nil
}

// GetImage returns the ledger entry for an image hash, or nil if unseen
func (s *Store) GetImage(sha string) (*ImageRecord, error) {
	var rec ImageRecord
	err := s.db.QueryRow(
		"SELECT sha256, path, run_id, quote_id, status, notes, processed_at FROM images WHERE sha256 = ?",
		sha,
	).Scan(&rec.SHA256, &rec.Path, &rec.RunID, &rec.QuoteID, &rec.Status, &rec.Notes, &rec.ProcessedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &rec, nil
}

// ImageForQuote returns the source image entry of a quote, or nil
func (s *Store) ImageForQuote(quoteID int) (*ImageRecord, error) {
	var rec ImageRecord
	err := s.db.QueryRow(
		"SELECT sha256, path, run_id, quote_id, status, notes, processed_at FROM images WHERE quote_id = ? ORDER BY processed_at DESC LIMIT 1",
		quoteID,
	).Scan(&rec.SHA256, &rec.Path, &rec.RunID, &rec.QuoteID, &rec.Status, &rec.Notes, &rec.ProcessedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("image for quote: %w", err)
	}
	return &rec, nil
}

// FailedImages returns images whose extraction failed, oldest first
func (s *Store) FailedImages() ([]ImageRecord, error) {
	rows, err := s.db.Query(
		"SELECT sha256, path, run_id, quote_id, status, notes, processed_at FROM images WHERE status = ? ORDER BY processed_at",
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed images: %w", err)
	}
	defer rows.Close()

	var recs []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		if err := rows.Scan(&rec.SHA256, &rec.Path, &rec.RunID, &rec.QuoteID, &rec.Status, &rec.Notes, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveEmbedding stores the embedding vector of a quote
func (s *Store) SaveEmbedding(quoteID int, vector []float64, model string) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO embeddings (quote_id, model, vector, created_at) VALUES (?, ?, ?, ?)",
		quoteID, model, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// FindSimilar returns up to limit stored quotes most similar to vector,
// excluding excludeID
func (s *Store) FindSimilar(vector []float64, limit int, excludeID int) ([]SimilarQuote, error) {
	rows, err := s.db.Query("SELECT quote_id, vector FROM embeddings WHERE quote_id != ?", excludeID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var results []SimilarQuote
	for rows.Next() {
		var id int
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		var stored []float64
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", id, err)
		}
		results = append(results, SimilarQuote{
			QuoteID:    id,
			Similarity: embedding.CosineSimilarity(vector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
