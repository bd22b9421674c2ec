package inspect

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// ColumnKind controls how a column is compared and rendered
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindCount
	KindBytes
	KindRatio
)

// Column is one header field of a Result
type Column struct {
	Name string
	Kind ColumnKind
}

// Result is a sortable table of rows; cells hold string, int64 or float64 values
// according to the column kind
type Result struct {
	Columns []Column
	Rows    [][]interface{}
}

// PrintOptions shape a Result before rendering
type PrintOptions struct {
	SortBy     string
	Desc       bool
	Limit      int // non-positive means unlimited
	HeaderOnly bool
}

func (r *Result) columnIndex(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Apply sorts and truncates the rows in place
func (r *Result) Apply(opts PrintOptions) error {
	if opts.HeaderOnly {
		r.Rows = nil
		return nil
	}
	if opts.SortBy != "" {
		idx := r.columnIndex(opts.SortBy)
		if idx < 0 {
			return fmt.Errorf("unknown sort field %q", opts.SortBy)
		}
		sort.SliceStable(r.Rows, func(i, j int) bool {
			c := compareCells(r.Rows[i][idx], r.Rows[j][idx])
			if opts.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if opts.Limit > 0 && len(r.Rows) > opts.Limit {
		r.Rows = r.Rows[:opts.Limit]
	}
	return nil
}

func compareCells(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func formatCell(kind ColumnKind, v interface{}) string {
	switch kind {
	case KindBytes:
		n, _ := v.(int64)
		if n < 0 {
			return "-"
		}
		return humanize.IBytes(uint64(n))
	case KindRatio:
		f, _ := v.(float64)
		if f < 0 {
			return "-"
		}
		return humanize.FtoaWithDigits(f, 3)
	case KindCount:
		n, _ := v.(int64)
		return humanize.Comma(n)
	default:
		return fmt.Sprint(v)
	}
}

// Render writes the result as an aligned text table
func (r *Result) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(r.Columns[i].Kind, v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
