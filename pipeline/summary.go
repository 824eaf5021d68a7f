package pipeline

import (
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// yearColumn is the header name every category uses for the year field.
const yearColumn = "Year"

// Summary describes a category table once it has been collected.
type Summary struct {
	Rows      int
	Columns   int
	Years     int
	FirstYear string
	LastYear  string
}

// Summarize loads the table into a string-typed DataFrame and reports its
// shape and year coverage.
func Summarize(header []string, rows []models.Row) (Summary, error) {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, row := range rows {
		records = append(records, []string(row))
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
	)
	if df.Err != nil {
		return Summary{}, fmt.Errorf("load dataframe: %w", df.Err)
	}

	summary := Summary{
		Rows:    df.Nrow(),
		Columns: df.Ncol(),
	}

	years := df.Col(yearColumn)
	if years.Err != nil {
		return summary, nil
	}

	seen := make(map[string]struct{})
	for _, y := range years.Records() {
		seen[y] = struct{}{}
	}
	distinct := make([]string, 0, len(seen))
	for y := range seen {
		distinct = append(distinct, y)
	}
	sort.Strings(distinct)

	summary.Years = len(distinct)
	if len(distinct) > 0 {
		summary.FirstYear = distinct[0]
		summary.LastYear = distinct[len(distinct)-1]
	}
	return summary, nil
}
