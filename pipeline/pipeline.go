package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
	"github.com/aluiziolira/go-scrape-vitibrasil/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []models.Row) error
	Close() error
	Validate() error
	Files() []string
}

// WriterFactory opens the output for one category inside dir.
type WriterFactory func(dir string, category models.Category) (OutputWriter, error)

// Pipeline accumulates one category's rows, rejects rows that do not fit
// the header, and writes the table in one go on Close.
type Pipeline struct {
	category models.Category
	dir      string
	factory  WriterFactory

	rows    []models.Row
	metrics *metrics

	mu      sync.Mutex // guards closed/err/files/summary
	closed  bool
	err     error
	files   []string
	summary *Summary
}

// NewPipeline builds a pipeline writing category into dir via factory.
func NewPipeline(category models.Category, dir string, factory WriterFactory) *Pipeline {
	return &Pipeline{
		category: category,
		dir:      dir,
		factory:  factory,
		metrics:  newMetrics(),
	}
}

// Process appends rows in order. Rows of the wrong width are dropped and
// counted under width_mismatch.
func (p *Pipeline) Process(rows ...models.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, row := range rows {
		if err := parser.ValidateRow(row, p.category.Header); err != nil {
			p.metrics.addValidation("width_mismatch")
			slog.Warn("rejecting row",
				slog.String("category", p.category.Name),
				slog.Any("row", []string(row)),
				slog.Any("error", err),
			)
			continue
		}
		p.rows = append(p.rows, row)
		p.metrics.incrementProcessed()
	}
	return nil
}

// Close writes the accumulated table. With no accepted rows nothing is
// created on disk.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true

	if len(p.rows) == 0 {
		slog.Debug("no rows collected, skipping output", slog.String("category", p.category.Name))
		return nil
	}

	if err := p.flush(); err != nil {
		p.err = err
		return err
	}

	summary, err := Summarize(p.category.Header, p.rows)
	if err != nil {
		slog.Warn("summarize table", slog.String("category", p.category.Name), slog.Any("error", err))
	} else {
		p.summary = &summary
	}
	return nil
}

func (p *Pipeline) flush() error {
	writer, err := p.factory(p.dir, p.category)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	if err := writer.Write(p.rows); err != nil {
		discard(writer)
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Validate(); err != nil {
		discard(writer)
		return fmt.Errorf("validate output: %w", err)
	}
	if err := writer.Close(); err != nil {
		removeFiles(writer.Files())
		return fmt.Errorf("close output: %w", err)
	}

	p.files = writer.Files()
	return nil
}

// discard closes a failed writer and removes whatever it left on disk, so a
// category is either written whole or not at all.
func discard(w OutputWriter) {
	if err := w.Close(); err != nil {
		slog.Debug("close failed writer", slog.Any("error", err))
	}
	removeFiles(w.Files())
}

func removeFiles(files []string) {
	for _, name := range files {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove partial output", slog.String("file", name), slog.Any("error", err))
		}
	}
}

// Err returns the first error encountered while writing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Table returns a snapshot of the accepted rows with the category header.
func (p *Pipeline) Table() *models.Table {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows := make([]models.Row, len(p.rows))
	copy(rows, p.rows)
	return &models.Table{
		Category: p.category.Name,
		Header:   p.category.Header,
		Rows:     rows,
	}
}

// Files lists the files written by Close, if any.
func (p *Pipeline) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.files))
	copy(out, p.files)
	return out
}

// Summary returns the table summary computed on Close, or nil.
func (p *Pipeline) Summary() *Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() *metrics {
	return &metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_rows":    m.processed,
		"validation_errors": copyValidation,
	}
}
