package pricing

import (
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in the currency's minor unit.
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// String formats m in major units with its currency symbol.
// Unknown currency codes fall back to the bare minor-unit amount and code.
func (m Money) String() string {
	return m.Format(language.English)
}

// Format renders m with the currency symbol and grouping of tag.
func (m Money) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return p.Sprintf("%d %s", m.Amount, m.Currency)
	}
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(m.Amount) / math.Pow10(scale)
	return p.Sprint(currency.Symbol(unit.Amount(major)))
}
