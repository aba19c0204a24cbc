package export

import (
	"fmt"
	"net/url"
	"strings"

	"cashbook/internal/core"
)

// DefaultShareBase is the WhatsApp click-to-chat endpoint.
const DefaultShareBase = "https://wa.me/"

// SummaryText is the plain-text message shared from the dashboard.
func SummaryText(s core.Summary) string {
	return fmt.Sprintf("CashBook Pro Summary\nNet Balance: %s\nMy Spending: %s\nPartner Spending: %s\nTotal Transactions: %d\n\nView your transactions in the app!",
		core.FormatDecimal(s.Net),
		core.FormatDecimal(s.MySpending),
		core.FormatDecimal(s.PartnerSpending),
		s.Count,
	)
}

// componentEscaper turns url.QueryEscape output into the encoding browsers
// apply to a single URI component.
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s like a URI component: spaces become %20
// and the marks !'()* stay literal.
func EncodeComponent(s string) string {
	return componentEscaper.Replace(url.QueryEscape(s))
}

// ShareURL builds the click-to-chat link carrying text. An empty base uses
// DefaultShareBase.
func ShareURL(base, text string) string {
	if base == "" {
		base = DefaultShareBase
	}
	return base + "?text=" + EncodeComponent(text)
}
