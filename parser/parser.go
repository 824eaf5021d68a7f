package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// TableSelector matches the data table on every category page.
const TableSelector = "table.tb_base.tb_dados"

var (
	// ErrTableNotFound means the page loaded but carried no data table,
	// which usually points at a markup change on the site.
	ErrTableNotFound = errors.New("parser: data table not found")
	// ErrWidthMismatch is returned when a row does not fit its header.
	ErrWidthMismatch = errors.New("parser: row width does not match header")
)

// ExtractRows pulls every non-empty row out of the data table and appends
// the year and, when tag is non-empty, the tag.
func ExtractRows(page string, year int, tag string) ([]models.Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find(TableSelector).First()
	if table.Length() == 0 {
		return nil, ErrTableNotFound
	}

	yearText := strconv.Itoa(year)
	var rows []models.Row
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make(models.Row, 0, cells.Length()+2)
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, CellText(td))
		})
		row = append(row, yearText)
		if tag != "" {
			row = append(row, tag)
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// CellText concatenates the trimmed text fragments below the selection.
// Whitespace between fragments is dropped, so "<td> 1 <b>2</b></td>" reads "12".
func CellText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		appendText(n, &b)
	}
	return b.String()
}

func appendText(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(n.Data))
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		appendText(child, b)
	}
}

// ValidateRow ensures the row has exactly one field per header column.
func ValidateRow(row models.Row, header []string) error {
	if len(row) != len(header) {
		return fmt.Errorf("%w: got %d fields, header has %d", ErrWidthMismatch, len(row), len(header))
	}
	return nil
}
