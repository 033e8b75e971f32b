package ledger

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// AmountEncoding is the wire encoding of the transaction amount string. Amounts are magnitudes in minor
// units, the direction comes from the transaction kind.
type AmountEncoding string

const (
	EncodingDecimal AmountEncoding = "decimal"
	EncodingHex     AmountEncoding = "hex" // zero padded, for example "00000000003c"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

func ParseEncoding(s string) (AmountEncoding, error) {
	switch AmountEncoding(s) {
	case EncodingDecimal, EncodingHex:
		return AmountEncoding(s), nil
	default:
		return "", errors.Errorf("unsupported amount encoding [%s]", s)
	}
}

func (e AmountEncoding) Parse(amount string) (int64, error) {
	switch e {
	case EncodingHex:
		// bit size 63 keeps the value inside int64
		value, err := strconv.ParseUint(amount, 16, 63)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing hex amount [%s]", amount)
		}
		return int64(value), nil
	case EncodingDecimal:
		if !isDigits(amount) {
			return 0, errors.Errorf("decimal amount [%s] must be plain digits", amount)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing decimal amount [%s]", amount)
		}
		if d.IsNegative() {
			return 0, errors.Errorf("negative amount [%s]", amount)
		}
		if !d.IsInteger() {
			return 0, errors.Errorf("amount [%s] is not in minor units", amount)
		}
		if d.GreaterThan(maxAmount) {
			return 0, errors.Errorf("amount [%s] out of range", amount)
		}
		return d.IntPart(), nil
	default:
		return 0, errors.Errorf("unsupported amount encoding [%s]", e)
	}
}

// isDigits rejects signs, exponents and separators that decimal parsing would accept.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
