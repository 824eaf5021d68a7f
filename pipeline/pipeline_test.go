package pipeline

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

var testCategory = models.Category{
	Name:     "production",
	Option:   "opt_02",
	Header:   []string{"Product", "Quantity", "Year"},
	FileStem: "base_producao",
}

type mockWriter struct {
	mu          sync.Mutex
	rows        []models.Row
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(rows []models.Row) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	mw.rows = append(mw.rows, rows...)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) Files() []string {
	return nil
}

func mockFactory(w *mockWriter, opened *int) WriterFactory {
	return func(string, models.Category) (OutputWriter, error) {
		*opened++
		return w, nil
	}
}

func TestPipelineRejectsWidthMismatch(t *testing.T) {
	writer := &mockWriter{}
	opened := 0
	p := NewPipeline(testCategory, t.TempDir(), mockFactory(writer, &opened))

	err := p.Process(
		models.Row{"VINHO DE MESA", "100", "2020"},
		models.Row{"VINHO FINO", "2020"},
		models.Row{"SUCO", "5", "2020", "subopt_01"},
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(writer.rows) != 1 {
		t.Fatalf("written rows = %d, want 1", len(writer.rows))
	}
	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["width_mismatch"] != 2 {
		t.Fatalf("width_mismatch = %d, want 2", validation["width_mismatch"])
	}
	if processed := p.GetMetrics()["processed_rows"].(int64); processed != 1 {
		t.Fatalf("processed_rows = %d, want 1", processed)
	}
}

func TestPipelineKeepsAccumulationOrder(t *testing.T) {
	writer := &mockWriter{}
	opened := 0
	p := NewPipeline(testCategory, t.TempDir(), mockFactory(writer, &opened))

	batches := [][]models.Row{
		{{"A", "1", "1970"}, {"B", "2", "1970"}},
		{{"A", "3", "1971"}},
		{{"C", "4", "1972"}},
	}
	for _, batch := range batches {
		if err := p.Process(batch...); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"1", "2", "3", "4"}
	for i, row := range writer.rows {
		if row[1] != want[i] {
			t.Fatalf("row %d = %v, want quantity %s", i, row, want[i])
		}
	}
	if opened != 1 || !writer.closed {
		t.Fatalf("writer opened=%d closed=%v, want a single open/close", opened, writer.closed)
	}
}

func TestPipelineEmptyCreatesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tabelas")
	factory, err := NewWriterFactory("csv")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := NewPipeline(testCategory, dir, factory)

	if err := p.Process(models.Row{"only", "two"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "base_producao.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err = %v", err)
	}
	if files := p.Files(); len(files) != 0 {
		t.Fatalf("files = %v, want none", files)
	}
	if p.Summary() != nil {
		t.Fatalf("summary should be nil for an empty table")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	opened := 0
	p := NewPipeline(testCategory, t.TempDir(), mockFactory(&mockWriter{}, &opened))
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(models.Row{"A", "1", "2020"}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
	if opened != 0 {
		t.Fatalf("writer opened %d times for an empty pipeline", opened)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	writeErr := errors.New("disk full")
	opened := 0
	p := NewPipeline(testCategory, t.TempDir(), mockFactory(&mockWriter{writeErr: writeErr}, &opened))

	if err := p.Process(models.Row{"A", "1", "2020"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if !errors.Is(p.Err(), writeErr) {
		t.Fatalf("Err() = %v, want write error", p.Err())
	}
	if err := p.Process(models.Row{"B", "2", "2020"}); !errors.Is(err, writeErr) {
		t.Fatalf("process after failure = %v, want write error", err)
	}
}

// failingWriter passes rows to the wrapped writer and then reports err.
type failingWriter struct {
	OutputWriter
	err error
}

func (fw failingWriter) Write(rows []models.Row) error {
	if err := fw.OutputWriter.Write(rows); err != nil {
		return err
	}
	return fw.err
}

func TestPipelineFailedWriteLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	writeErr := errors.New("disk full")
	path := filepath.Join(dir, "base_producao.csv")
	factory := func(string, models.Category) (OutputWriter, error) {
		csvWriter, err := NewCSVWriter(path, testCategory.Header)
		if err != nil {
			return nil, err
		}
		return failingWriter{OutputWriter: csvWriter, err: writeErr}, nil
	}
	p := NewPipeline(testCategory, dir, factory)

	if err := p.Process(models.Row{"A", "1", "2020"}, models.Row{"B", "2", "2020"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("partial output should be removed, stat err = %v", err)
	}
	if files := p.Files(); len(files) != 0 {
		t.Fatalf("files = %v, want none", files)
	}
}

func TestPipelineCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	factory, err := NewWriterFactory("csv")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := NewPipeline(testCategory, dir, factory)

	rows := []models.Row{
		{"VINHO DE MESA", "169.762.429", "1970"},
		{"Tinto, seco", "", "1970"},
		{"Total", "\"quoted\"", "1971"},
	}
	if err := p.Process(rows...); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "base_producao.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != len(rows)+1 {
		t.Fatalf("records=%d, want %d", len(records), len(rows)+1)
	}
	for i, column := range testCategory.Header {
		if records[0][i] != column {
			t.Fatalf("header = %v, want %v", records[0], testCategory.Header)
		}
	}
	for i, row := range rows {
		for j := range row {
			if records[i+1][j] != row[j] {
				t.Fatalf("record %d = %v, want %v", i, records[i+1], row)
			}
		}
	}

	summary := p.Summary()
	if summary == nil {
		t.Fatalf("expected summary after write")
	}
	if summary.Rows != 3 || summary.Years != 2 || summary.FirstYear != "1970" || summary.LastYear != "1971" {
		t.Fatalf("summary = %+v", *summary)
	}

	table := p.Table()
	if table.Category != "production" || len(table.Rows) != 3 {
		t.Fatalf("table = %+v", table)
	}
}
