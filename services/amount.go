package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/zhifu/sumup-terminal/utils"
)

var (
	amountPattern  = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	tipSeparators  = regexp.MustCompile(`[\s,;]+`)
	tipNumber      = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	maxMinorDigits = 6
)

// MinorAmount is an amount converted to integer minor units together with
// its display form (comma decimal separator, dot thousands separator).
type MinorAmount struct {
	Value     int64
	Formatted string
}

// ConvertAmountToMinorUnits parses a user supplied amount ("10,50", "7",
// "1234.5") into minor units with exactly minorUnit fraction digits.
func ConvertAmountToMinorUnits(amount string, minorUnit int) (MinorAmount, error) {
	if minorUnit < 0 || minorUnit > maxMinorDigits {
		return MinorAmount{}, fmt.Errorf("minor unit must be between 0 and %d", maxMinorDigits)
	}

	normalized := strings.ReplaceAll(strings.TrimSpace(amount), ",", ".")
	if normalized == "" || !amountPattern.MatchString(normalized) {
		return MinorAmount{}, fmt.Errorf("amount %q must be a positive number", amount)
	}

	whole, fraction, _ := strings.Cut(normalized, ".")
	if minorUnit == 0 && fraction != "" {
		return MinorAmount{}, fmt.Errorf("amount %q must not have decimal places", amount)
	}
	if len(fraction) > minorUnit {
		return MinorAmount{}, fmt.Errorf("at most %d decimal places are allowed", minorUnit)
	}
	fraction += strings.Repeat("0", minorUnit-len(fraction))

	scale := int64(math.Pow10(minorUnit))
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > math.MaxInt64/scale-1 {
		return MinorAmount{}, fmt.Errorf("amount %q is too large", amount)
	}
	var f int64
	if fraction != "" {
		f, _ = strconv.ParseInt(fraction, 10, 64)
	}

	value := w*scale + f
	if value <= 0 {
		return MinorAmount{}, ErrInvalidAmount
	}
	return MinorAmount{Value: value, Formatted: FormatMinorUnits(value, minorUnit)}, nil
}

// FormatMinorUnits renders value as major units, e.g. 123450 with 2 digits
// becomes "1.234,50".
func FormatMinorUnits(value int64, minorUnit int) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	scale := int64(math.Pow10(minorUnit))
	whole := strconv.FormatInt(value/scale, 10)

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if minorUnit > 0 {
		b.WriteByte(',')
		b.WriteString(fmt.Sprintf("%0*d", minorUnit, value%scale))
	}
	return b.String()
}

// MajorUnits converts minor units back to a float, for APIs that want major units.
func MajorUnits(value int64, minorUnit int) float64 {
	return float64(value) / math.Pow10(minorUnit)
}

// ParseTipRates parses a list of tip rates separated by whitespace, commas or
// semicolons. Values above 1 are percentages. Every rate must end up strictly
// between 0 and 1; results are rounded to 4 places and deduplicated.
func ParseTipRates(input string) ([]float64, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	var rates []float64
	seen := make(map[float64]bool)
	for _, part := range tipSeparators.Split(input, -1) {
		part = strings.TrimSpace(strings.ReplaceAll(part, ",", "."))
		if part == "" {
			continue
		}

		// plain decimals only, ParseFloat would also take hex floats
		if !tipNumber.MatchString(part) {
			return nil, fmt.Errorf("invalid tip rate: %s", part)
		}
		rate, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil, fmt.Errorf("invalid tip rate: %s", part)
		}
		if rate > 1 {
			rate /= 100
		}
		if rate <= 0 || rate >= 1 {
			return nil, fmt.Errorf("tip rates must be between 0 and 1: %s", part)
		}

		rate = math.Round(rate*10000) / 10000
		if !seen[rate] {
			seen[rate] = true
			rates = append(rates, rate)
		}
	}
	return rates, nil
}

// GenerateForeignTransactionID returns a fresh correlation id for a checkout.
func GenerateForeignTransactionID() string {
	return "ft_" + utils.RandomHex(8)
}
