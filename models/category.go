// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strings"
)

// Category names as they appear in logs, metrics and the --category flag.
const (
	Production        = "production"
	Processing        = "processing"
	Commercialization = "commercialization"
	Import            = "import"
	Export            = "export"
)

// Category describes one statistical tab of the source site.
type Category struct {
	Name   string
	Option string
	// SubFilters are sent as the subopcao query parameter, outermost loop first.
	SubFilters []string
	// TagSubFilter appends the sub-filter code to every extracted row.
	TagSubFilter bool
	Header       []string
	// FileStem is the output file name without extension.
	FileStem string
}

// Categories returns the fixed catalog in run order.
func Categories() []Category {
	return []Category{
		{
			Name:     Production,
			Option:   "opt_02",
			Header:   []string{"Product", "Quantity", "Year"},
			FileStem: "base_producao",
		},
		{
			Name:         Processing,
			Option:       "opt_03",
			SubFilters:   []string{"subopt_01", "subopt_02", "subopt_03", "subopt_04"},
			TagSubFilter: true,
			Header:       []string{"Cultivar", "Quantity", "Year", "SubFilter"},
			FileStem:     "base_processamento",
		},
		{
			// The site only exposes one commercialization view; the code is
			// sent but never varies, so rows are left untagged.
			Name:       Commercialization,
			Option:     "opt_04",
			SubFilters: []string{"subopt_01"},
			Header:     []string{"Product", "Quantity", "Year"},
			FileStem:   "base_comercializacao",
		},
		{
			Name:         Import,
			Option:       "opt_05",
			SubFilters:   []string{"subopt_01", "subopt_02", "subopt_03", "subopt_04", "subopt_05"},
			TagSubFilter: true,
			Header:       []string{"Countries", "Quantity", "Value", "Year", "SubFilter"},
			FileStem:     "base_importacao",
		},
		{
			Name:         Export,
			Option:       "opt_06",
			SubFilters:   []string{"subopt_01", "subopt_02", "subopt_03", "subopt_04"},
			TagSubFilter: true,
			Header:       []string{"Countries", "Quantity", "Value", "Year", "SubFilter"},
			FileStem:     "base_exportacao",
		},
	}
}

// LookupCategories resolves names against the catalog, preserving catalog
// order. An empty list selects every category.
func LookupCategories(names []string) ([]Category, error) {
	all := Categories()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, c := range all {
			if c.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		wanted[name] = true
	}

	out := make([]Category, 0, len(wanted))
	for _, c := range all {
		if wanted[c.Name] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Query identifies a single page request.
type Query struct {
	Category  string
	Option    string
	Year      int
	SubFilter string
	// Tag is appended to extracted rows when non-empty.
	Tag string
}

// Queries expands the category over [from, to], sub-filter outer and year
// inner, which is also the order rows end up in the output.
func (c Category) Queries(from, to int) []Query {
	if to < from {
		return nil
	}

	subFilters := c.SubFilters
	if len(subFilters) == 0 {
		subFilters = []string{""}
	}

	out := make([]Query, 0, len(subFilters)*(to-from+1))
	for _, sub := range subFilters {
		for year := from; year <= to; year++ {
			q := Query{
				Category:  c.Name,
				Option:    c.Option,
				Year:      year,
				SubFilter: sub,
			}
			if c.TagSubFilter {
				q.Tag = sub
			}
			out = append(out, q)
		}
	}
	return out
}
