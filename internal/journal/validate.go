package journal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ErrorCode string

const (
	CodeUnbalanced    ErrorCode = "UNBALANCED_JE"
	CodeMalformedLine ErrorCode = "MALFORMED_LINE"
)

// ValidationError describes why a journal entry cannot be posted.
type ValidationError struct {
	Code    ErrorCode
	Message string
	// Line is the zero-based index of the offending line, -1 for entry-level failures.
	Line    int
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *ValidationError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Validate checks line structure and that debits equal credits at minor-unit precision.
// It returns nil when the entry is postable.
func Validate(lines []Line) *ValidationError {
	if len(lines) == 0 {
		return malformed(-1, "journal entry must have at least one line")
	}

	for i, raw := range lines {
		line := raw.Normalize()
		if line.Account == "" {
			return malformed(i, fmt.Sprintf("line %d: account is required", i+1))
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return malformed(i, fmt.Sprintf("line %d (%s): amounts must not be negative", i+1, line.Account))
		}
		hasDebit := !line.Debit.IsZero()
		hasCredit := !line.Credit.IsZero()
		if hasDebit == hasCredit {
			return malformed(i, fmt.Sprintf("line %d (%s): exactly one of debit or credit must be non-zero", i+1, line.Account))
		}
	}

	debits, credits := Totals(lines)
	debits = ToMinorPrecision(debits)
	credits = ToMinorPrecision(credits)
	if !debits.Equal(credits) {
		return &ValidationError{
			Code:    CodeUnbalanced,
			Message: UnbalancedMessage(debits, credits),
			Line:    -1,
			Debits:  debits,
			Credits: credits,
		}
	}
	return nil
}

// UnbalancedMessage renders the user-facing totals message, e.g. "Debits (150.00) must equal credits (100.00)".
func UnbalancedMessage(debits, credits decimal.Decimal) string {
	return fmt.Sprintf("Debits (%s) must equal credits (%s)",
		debits.StringFixed(MinorUnitExponent),
		credits.StringFixed(MinorUnitExponent),
	)
}

func malformed(line int, message string) *ValidationError {
	return &ValidationError{
		Code:    CodeMalformedLine,
		Message: strings.TrimSpace(message),
		Line:    line,
	}
}
