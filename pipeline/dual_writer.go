// Package pipeline accumulates category rows and writes them as CSV, JSONL or XLSX.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// MultiWriter fans every call out to a fixed set of writers.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter wraps writers; the first one is considered primary.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter writes the same table as CSV and JSONL.
func NewDualWriter(csvFilename, jsonFilename string, header []string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename, header)
	if err != nil {
		csvWriter.Close()
		removeFiles(csvWriter.Files())
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return NewMultiWriter(csvWriter, jsonWriter), nil
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(rows []models.Row) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Write(rows); err != nil {
			return fmt.Errorf("write %v: %w", w.Files(), err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %v: %w", w.Files(), err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate %v: %w", w.Files(), err))
		}
	}
	return errors.Join(errs...)
}

// Files lists the paths of every writer in order.
func (mw *MultiWriter) Files() []string {
	var out []string
	for _, w := range mw.writers {
		out = append(out, w.Files()...)
	}
	return out
}
