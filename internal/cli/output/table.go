// Package output renders CLI command results as aligned terminal tables,
// for `pesitd status`.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that know how to lay themselves
// out as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left-aligned table to w, matching
// the look of the teacher's CLI output.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range data.Rows() {
		table.Append(row)
	}
	table.Render()
	return nil
}

// ListenerRows adapts a slice of status rows to TableRenderer without
// requiring the listener package to depend on this one.
type ListenerRows struct {
	headers []string
	rows    [][]string
}

// NewListenerRows builds a ListenerRows with the given column headers.
func NewListenerRows(headers ...string) *ListenerRows {
	return &ListenerRows{headers: headers}
}

// AddRow appends one data row.
func (t *ListenerRows) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// Headers implements TableRenderer.
func (t *ListenerRows) Headers() []string { return t.headers }

// Rows implements TableRenderer.
func (t *ListenerRows) Rows() [][]string { return t.rows }
