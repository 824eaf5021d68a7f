package models

import "time"

// Row is one extracted table row: trimmed cell texts followed by the year
// and, for tagged categories, the sub-filter code.
type Row []string

// Table is the accumulated, headered dataset for one category.
type Table struct {
	Category string
	Header   []string
	Rows     []Row
}

// Records flattens the table into header-first string records.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	for _, row := range t.Rows {
		out = append(out, []string(row))
	}
	return out
}

// CategoryResult holds the outcome of collecting one category.
type CategoryResult struct {
	Category      string
	StartTime     time.Time
	EndTime       time.Time
	QueryCount    int
	ErrorCount    int
	ErrorsByType  map[string]int
	RowCount      int
	RejectedCount int
	// OutputFiles is empty when nothing was written.
	OutputFiles []string
	Years       int
	FirstYear   string
	LastYear    string
}

// Duration returns the wall time spent on the category.
func (r *CategoryResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
