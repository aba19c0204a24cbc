// Package export renders the ledger into shareable artifacts: the tabular
// transactions report (PDF, Markdown, plain text, spreadsheet), the category
// chart and the WhatsApp summary link.
package export

import (
	"errors"
	"slices"
	"time"

	"cashbook/internal/core"
)

const (
	ReportTitle    = "CashBook Pro Transactions Report"
	ReportFileName = "CashBookPro_Transactions_Report.pdf"
	DateLayout     = "02 Jan 2006 03:04 PM"
)

// ReportHeader is the column order of every report rendering.
var ReportHeader = []string{"Date", "User", "Amount", "Type", "Category", "Remark"}

var ErrNothingToExport = errors.New("no transactions to export")

// Table is a rendered-agnostic report: a title, a header and string cells.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// EmptyReport is the table published when the ledger has no rows.
func EmptyReport() Table {
	return Table{Title: ReportTitle, Header: append([]string(nil), ReportHeader...)}
}

// Equal reports whether t and o render the same cells.
func (t Table) Equal(o Table) bool {
	if t.Title != o.Title || !slices.Equal(t.Header, o.Header) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Rows {
		if !slices.Equal(t.Rows[i], o.Rows[i]) {
			return false
		}
	}
	return true
}

// BuildReport lays out txs in feed order, one row each. Dates are shown in
// loc; a nil loc means UTC.
func BuildReport(txs []core.Transaction, loc *time.Location) (Table, error) {
	if len(txs) == 0 {
		return Table{}, ErrNothingToExport
	}
	if loc == nil {
		loc = time.UTC
	}

	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		date := ""
		if !t.CreatedAt.IsZero() {
			date = t.CreatedAt.In(loc).Format(DateLayout)
		}
		rows = append(rows, []string{
			date,
			t.DisplayName(),
			core.FormatDecimal(t.Amount),
			string(t.Type),
			string(t.Category),
			t.Remark,
		})
	}

	return Table{
		Title:  ReportTitle,
		Header: append([]string(nil), ReportHeader...),
		Rows:   rows,
	}, nil
}
