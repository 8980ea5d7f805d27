package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders amount for display in notification payloads.
func FormatINR(amount float64) string {
	return inrPrinter.Sprintf("₹%.2f", amount)
}
