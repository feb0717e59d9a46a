package report

import (
	"fmt"
	"math"
	"strconv"
)

// MaxDigits is the number of digits of π a float64 can represent.
const MaxDigits = 16

// Digits compares an estimate with math.Pi digit by digit.
type Digits struct {
	// Correct is the number of leading digits, the 3 included, that match
	// math.Pi.
	Correct int `json:"correct" yaml:"correct"`

	// LastDeviation is the estimate's first wrong digit minus the reference
	// digit at the same position.
	LastDeviation int `json:"last_deviation" yaml:"last_deviation"`

	// Known is false when there is no wrong digit to compare, either because
	// all MaxDigits match or because the estimate is not a finite number.
	Known bool `json:"known" yaml:"known"`
}

// CorrectDigits counts the digits of estimate that match math.Pi.
func CorrectDigits(estimate float64) Digits {
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		return Digits{}
	}

	ref := strconv.FormatFloat(math.Pi, 'f', -1, 64)
	got := strconv.FormatFloat(estimate, 'f', -1, 64)

	var d Digits
	for i := 0; i < len(ref); i++ {
		// Missing trailing digits read as zeros
		c := byte('0')
		if i < len(got) {
			c = got[i]
		} else if ref[i] == '.' {
			c = '.'
		}

		if c == ref[i] {
			if c != '.' {
				d.Correct++
			}
			continue
		}

		if isDigit(c) && isDigit(ref[i]) {
			d.LastDeviation = int(c) - int(ref[i])
			d.Known = true
		}
		return d
	}

	return d
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// String renders the digit count the way the report prints it.
func (d Digits) String() string {
	if d.Correct >= MaxDigits {
		return fmt.Sprintf("%d+", MaxDigits)
	}
	return strconv.Itoa(d.Correct)
}

// DeviationString renders LastDeviation, or "unknown".
func (d Digits) DeviationString() string {
	if !d.Known {
		return "unknown"
	}
	return fmt.Sprintf("%+d", d.LastDeviation)
}
