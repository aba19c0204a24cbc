package export

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteMarkdown renders t as a GitHub-flavoured Markdown table under a title
// heading.
func WriteMarkdown(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		return ErrNothingToExport
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", t.Title); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(t.Rows)
	table.Render()
	return nil
}

// WriteText renders t as a boxed plain-text table for terminals.
func WriteText(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		return ErrNothingToExport
	}
	if _, err := fmt.Fprintln(w, t.Title); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Header)
	table.SetAutoWrapText(false)
	table.AppendBulk(t.Rows)
	table.Render()
	return nil
}
