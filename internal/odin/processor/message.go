package processor

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

var banner = strings.Repeat("🟢", 50)

// AlertFields are the values rendered into an alert message.
type AlertFields struct {
	TokenName   string
	FiatTotal   decimal.Decimal
	TokenAmount decimal.Decimal
	UnitPrice   decimal.Decimal
	Trader      string
	Link        string
}

// FormatAlert renders the HTML alert text. Amounts use two decimals.
func FormatAlert(f AlertFields) string {
	return fmt.Sprintf(
		"New %s Buy!!!!!!\n"+
			"%s\n"+
			"🔔 BUY! BUY! BUY!\n"+
			"💵 Total: $%s\n"+
			"📊 Amount: %s tokens\n"+
			"💰 Price: %s sats\n"+
			"👤 User: %s\n"+
			"🔗 Buy here: %s",
		html.EscapeString(f.TokenName),
		banner,
		f.FiatTotal.StringFixed(2),
		f.TokenAmount.StringFixed(2),
		f.UnitPrice.StringFixed(2),
		html.EscapeString(f.Trader),
		f.Link,
	)
}
