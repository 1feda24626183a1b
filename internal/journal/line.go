// Package journal validates and fingerprints journal entries before they reach the external ledger.
package journal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places carried by a currency minor unit (cents).
const MinorUnitExponent = 2

// Line is one debit or credit row of a journal entry.
type Line struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit_amount"`
	Credit  decimal.Decimal `json:"credit_amount"`
}

// Normalize trims the account code. Amounts are left untouched.
func (l Line) Normalize() Line {
	l.Account = strings.TrimSpace(l.Account)
	return l
}

// IsDebit reports whether the line carries a debit amount.
func (l Line) IsDebit() bool {
	return !l.Debit.IsZero()
}

// Amount returns whichever side of the line is populated.
func (l Line) Amount() decimal.Decimal {
	if l.IsDebit() {
		return l.Debit
	}
	return l.Credit
}

// Totals sums debits and credits across lines.
func Totals(lines []Line) (debits, credits decimal.Decimal) {
	debits = decimal.Zero
	credits = decimal.Zero
	for _, line := range lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	return debits, credits
}

func toMinorUnits(d decimal.Decimal) string {
	return d.Shift(MinorUnitExponent).String()
}

// ToMinorPrecision rounds half away from zero to whole minor units.
func ToMinorPrecision(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitExponent)
}
