package model

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places kept for prices and amounts.
const MoneyScale = 2

// ValidMoneyScale reports whether d has no digits beyond MoneyScale.
func ValidMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}
