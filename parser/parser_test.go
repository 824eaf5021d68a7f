package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

func page(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="tb_base tb_dados">`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func TestExtractRows(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		year     int
		tag      string
		expected []models.Row
	}{
		{
			name:     "untagged rows",
			html:     page("<tr><td>A</td><td>1</td></tr>", "<tr><td>B</td><td>2</td></tr>"),
			year:     2020,
			expected: []models.Row{{"A", "1", "2020"}, {"B", "2", "2020"}},
		},
		{
			name:     "tagged row",
			html:     page("<tr><td>X</td><td>5</td></tr>"),
			year:     2020,
			tag:      "subopt_02",
			expected: []models.Row{{"X", "5", "2020", "subopt_02"}},
		},
		{
			name:     "spacer rows dropped",
			html:     page("<tr></tr>", "<tr><th>Produto</th><th>Quantidade</th></tr>", "<tr><td>A</td><td>1</td></tr>"),
			year:     1970,
			expected: []models.Row{{"A", "1", "1970"}},
		},
		{
			name:     "cell text trimmed",
			html:     page("<tr><td>\n\t VINHO DE MESA \n</td><td>  169.762.429 </td></tr>"),
			year:     1999,
			expected: []models.Row{{"VINHO DE MESA", "169.762.429", "1999"}},
		},
		{
			name:     "nested fragments joined",
			html:     page("<tr><td> Tinto <b> Bordo </b></td><td>1</td></tr>"),
			year:     2001,
			expected: []models.Row{{"TintoBordo", "1", "2001"}},
		},
		{
			name:     "totals row kept",
			html:     page("<thead><tr><th>Produto</th></tr></thead>", "<tbody><tr><td>A</td><td>1</td></tr></tbody>", "<tfoot><tr><td>Total</td><td>1</td></tr></tfoot>"),
			year:     2010,
			expected: []models.Row{{"A", "1", "2010"}, {"Total", "1", "2010"}},
		},
		{
			name:     "empty cell kept",
			html:     page("<tr><td>Chile</td><td></td><td>-</td></tr>"),
			year:     2015,
			tag:      "subopt_01",
			expected: []models.Row{{"Chile", "", "-", "2015", "subopt_01"}},
		},
		{
			name:     "table without rows",
			html:     page(),
			year:     2015,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ExtractRows(tt.html, tt.year, tt.tag)
			if err != nil {
				t.Fatalf("ExtractRows() error = %v", err)
			}
			if diff := cmp.Diff(tt.expected, rows); diff != "" {
				t.Fatalf("ExtractRows() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractRowsTableNotFound(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{name: "no table", html: "<html><body><p>Sem dados</p></body></html>"},
		{name: "only one class", html: `<table class="tb_base"><tr><td>A</td></tr></table>`},
		{name: "empty document", html: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ExtractRows(tt.html, 2020, "")
			if !errors.Is(err, ErrTableNotFound) {
				t.Fatalf("expected ErrTableNotFound, got %v", err)
			}
			if rows != nil {
				t.Fatalf("expected no rows, got %v", rows)
			}
		})
	}
}

func TestExtractRowsUsesFirstMatchingTable(t *testing.T) {
	html := page("<tr><td>first</td></tr>") + `<table class="tb_dados tb_base extra"><tr><td>second</td></tr></table>`
	rows, err := ExtractRows(html, 2000, "")
	if err != nil {
		t.Fatalf("ExtractRows() error = %v", err)
	}
	if diff := cmp.Diff([]models.Row{{"first", "2000"}}, rows); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRow(t *testing.T) {
	header := []string{"Product", "Quantity", "Year"}
	tests := []struct {
		name    string
		row     models.Row
		wantErr bool
	}{
		{name: "matching width", row: models.Row{"A", "1", "2020"}, wantErr: false},
		{name: "too short", row: models.Row{"A", "2020"}, wantErr: true},
		{name: "too long", row: models.Row{"A", "1", "2020", "subopt_01"}, wantErr: true},
		{name: "empty", row: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRow(tt.row, header)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrWidthMismatch) {
				t.Errorf("ValidateRow() error = %v, want ErrWidthMismatch", err)
			}
		})
	}
}
