package models

import (
	"testing"
)

func TestCategoryQueryCounts(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{name: Production, expected: 54},
		{name: Processing, expected: 54 * 4},
		{name: Commercialization, expected: 54},
		{name: Import, expected: 54 * 5},
		{name: Export, expected: 54 * 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cats, err := LookupCategories([]string{tt.name})
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if got := len(cats[0].Queries(1970, 2023)); got != tt.expected {
				t.Fatalf("queries=%d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCategoryQueriesOrderAndRange(t *testing.T) {
	cats, err := LookupCategories([]string{Processing})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	queries := cats[0].Queries(1970, 2023)

	first, last := queries[0], queries[len(queries)-1]
	if first.Year != 1970 || first.SubFilter != "subopt_01" {
		t.Fatalf("first query = %+v", first)
	}
	if last.Year != 2023 || last.SubFilter != "subopt_04" {
		t.Fatalf("last query = %+v", last)
	}
	if queries[54].Year != 1970 || queries[54].SubFilter != "subopt_02" {
		t.Fatalf("sub-filter should be the outer loop, got %+v", queries[54])
	}
	for _, q := range queries {
		if q.Year < 1970 || q.Year > 2023 {
			t.Fatalf("year %d outside range", q.Year)
		}
		if q.Tag != q.SubFilter {
			t.Fatalf("processing rows should be tagged, got %+v", q)
		}
	}
}

func TestCommercializationSendsButDoesNotTag(t *testing.T) {
	cats, err := LookupCategories([]string{Commercialization})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	for _, q := range cats[0].Queries(2000, 2001) {
		if q.SubFilter != "subopt_01" {
			t.Fatalf("sub-filter = %q, want subopt_01", q.SubFilter)
		}
		if q.Tag != "" {
			t.Fatalf("tag = %q, want empty", q.Tag)
		}
	}
}

func TestProductionHasNoSubFilter(t *testing.T) {
	cats, err := LookupCategories([]string{"Production"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	for _, q := range cats[0].Queries(1970, 1971) {
		if q.SubFilter != "" || q.Tag != "" {
			t.Fatalf("unexpected sub-filter in %+v", q)
		}
	}
}

func TestLookupCategories(t *testing.T) {
	all, err := LookupCategories(nil)
	if err != nil || len(all) != 5 {
		t.Fatalf("all categories = %d, %v", len(all), err)
	}

	subset, err := LookupCategories([]string{"export", "production"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(subset) != 2 || subset[0].Name != Production || subset[1].Name != Export {
		t.Fatalf("subset should keep catalog order, got %v", subset)
	}

	if _, err := LookupCategories([]string{"wine"}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestEmptyYearRange(t *testing.T) {
	if got := Categories()[0].Queries(2023, 1970); got != nil {
		t.Fatalf("inverted range should yield no queries, got %d", len(got))
	}
}
