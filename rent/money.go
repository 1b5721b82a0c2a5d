package rent

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount the way the dashboards show it: grouped
// thousands, at most two decimals, no trailing zeros ("12,500", "1,500.5").
func FormatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return amountPrinter.Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
}
