package stellar

import (
	"fmt"
	"math"
	"regexp"

	"github.com/shopspring/decimal"
)

// Native amounts carry 7 fractional digits; one XLM is 10_000_000 stroops.
const AmountPrecision = 7

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,7})?$`)

var maxStroops = decimal.NewFromInt(math.MaxInt64)

// ParseStroops converts a decimal amount string into stroops without rounding.
func ParseStroops(amount string) (int64, error) {
	if !amountPattern.MatchString(amount) {
		return 0, fmt.Errorf("invalid amount %q: expected up to %d decimal places", amount, AmountPrecision)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	stroops := value.Shift(AmountPrecision)
	if stroops.GreaterThan(maxStroops) {
		return 0, fmt.Errorf("amount %q is out of range", amount)
	}
	return stroops.IntPart(), nil
}

// FormatStroops renders stroops in the chain's decimal form, e.g. 10000000 -> "1.0000000".
func FormatStroops(stroops int64) string {
	return decimal.New(stroops, -AmountPrecision).StringFixed(AmountPrecision)
}
