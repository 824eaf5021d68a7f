package pipeline

import (
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// XLSXWriter buffers rows into a single-sheet workbook saved on Close.
type XLSXWriter struct {
	path   string
	sheet  string
	file   *excelize.File
	next   int
	closed bool
	mu     sync.Mutex
}

// NewXLSXWriter creates the workbook and writes the header into row 1.
func NewXLSXWriter(filename, sheet string, header []string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name xlsx sheet: %w", err)
	}

	xw := &XLSXWriter{
		path:  filename,
		sheet: sheet,
		file:  f,
		next:  1,
	}
	if err := xw.writeRow(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	return xw, nil
}

// Write appends rows below the previous ones.
func (xw *XLSXWriter) Write(rows []models.Row) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, row := range rows {
		if err := xw.writeRow(row); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", xw.next, err)
		}
	}
	return nil
}

func (xw *XLSXWriter) writeRow(values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, xw.next)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := xw.file.SetSheetRow(xw.sheet, cell, &row); err != nil {
		return err
	}
	xw.next++
	return nil
}

// Close saves the workbook to disk.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return nil
	}
	xw.closed = true

	if err := xw.file.SaveAs(xw.path); err != nil {
		xw.file.Close()
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return xw.file.Close()
}

// Validate ensures at least one data row sits below the header.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.next <= 2 {
		return fmt.Errorf("xlsx sheet has no data rows")
	}
	return nil
}

// Files returns the workbook path.
func (xw *XLSXWriter) Files() []string {
	return []string{xw.path}
}
