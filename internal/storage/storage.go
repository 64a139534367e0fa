// Package storage keeps a history of classified texts.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bdougie/toxiclens/internal/models"
)

const batchSize = 10 // Number of records to batch write

// DirectSource is the source name of texts submitted without a video.
const DirectSource = "direct"

// Record is one classified text.
type Record struct {
	Source    string        `json:"source"`
	Text      string        `json:"text"`
	Scores    models.Scores `json:"scores"`
	Labels    models.Labels `json:"labels"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewRecord builds a record from a classification result.
func NewRecord(source string, r models.ClassificationResult) Record {
	if source == "" {
		source = DirectSource
	}
	return Record{
		Source:    source,
		Text:      r.Text,
		Scores:    r.RawScores,
		Labels:    r.Labels,
		CreatedAt: time.Now().UTC(),
	}
}

// Storage defines the interface for storing classification history
type Storage interface {
	// AddResult adds a single record
	AddResult(ctx context.Context, record Record) error

	// Flush ensures all pending records are saved
	Flush() error
}

// Match is a stored text whose scores are near a query.
type Match struct {
	Source   string        `json:"source"`
	Text     string        `json:"text"`
	Scores   models.Scores `json:"scores"`
	Distance float64       `json:"distance"`
}

// Searcher finds stored texts by score similarity.
type Searcher interface {
	SearchSimilar(ctx context.Context, scores models.Scores, limit int) ([]Match, error)
}

// File writes records as JSON arrays, one file per source.
type File struct {
	pending []Record
	mu      sync.Mutex
	dir     string
}

// NewFile creates a file store rooted at dir
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Path returns the results file of a source.
func (s *File) Path(source string) string {
	return filepath.Join(s.dir, source, "analysis_results.json")
}

// AddResult adds a record to the batch and flushes if the batch is full
func (s *File) AddResult(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, record)

	if len(s.pending) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending records to disk
func (s *File) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *File) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	var order []string
	bySource := make(map[string][]Record)
	for _, r := range s.pending {
		if _, ok := bySource[r.Source]; !ok {
			order = append(order, r.Source)
		}
		bySource[r.Source] = append(bySource[r.Source], r)
	}

	for _, source := range order {
		if err := s.appendRecords(s.Path(source), bySource[source]); err != nil {
			return err
		}
	}

	s.pending = nil
	return nil
}

func (s *File) appendRecords(path string, records []Record) error {
	var existing []Record
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to unmarshal existing records: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for records: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create records file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(append(existing, records...)); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}

// Load reads every flushed record of a source.
func (s *File) Load(source string) ([]Record, error) {
	data, err := os.ReadFile(s.Path(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	return records, nil
}
