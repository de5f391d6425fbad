package ui

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

// Table is a boxed terminal table.
type Table struct {
	Header []string
	Rows   [][]string
	// Separate draws a line between rows whose cells span several lines.
	Separate bool
}

// Append adds a row.
func (t *Table) Append(row ...string) {
	t.Rows = append(t.Rows, row)
}

// Render writes the table to w. Nothing is written when the table has no
// rows.
func (t *Table) Render(w io.Writer) {
	if len(t.Rows) == 0 {
		return
	}

	data := make([][]string, 0, len(t.Rows)+1)
	data = append(data, t.Header)
	data = append(data, t.Rows...)

	table := pterm.DefaultTable.WithBoxed().WithHasHeader().WithData(data)

	if t.Separate {
		table = table.WithRowSeparator("-").WithHeaderRowSeparator("-")
	}

	str, err := table.Srender()
	if err != nil {
		pterm.Error.Printfln("Failed to output table: %s", err.Error())
		return
	}

	fmt.Fprintln(w, str)
}
