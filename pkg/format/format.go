// Package format renders decimals the way incremental games display them:
// plain decimals for small amounts, comma grouping up to a billion, mantissa
// and exponent past that, and super-exponential notation for towers.
package format

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-features/pkg/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultDecimals is the precision used when a caller does not supply one.
var DefaultDecimals = 2

var (
	thousand     = decimal.FromFloat(1e3)
	billion      = decimal.FromFloat(1e9)
	tenThousandE = decimal.MustParse("e10000")
	millionE     = decimal.MustParse("e1000000")
	towerFloor   = decimal.MustParse("eeee1000")
	oneE1000     = decimal.MustParse("e1000")
	smallFloor   = decimal.FromFloat(0.0001)
	tenth        = decimal.FromFloat(0.1)
	thousandth   = decimal.FromFloat(0.001)
	wholeCutoff  = decimal.FromFloat(0.98)
	million      = decimal.FromFloat(1e6)
	tenThousand  = decimal.FromFloat(1e4)
)

var printer = message.NewPrinter(language.English)

// Format renders n with precision decimals. When small is set, values below
// 0.0001 render as inverted exponents instead of 0.
func Format(n decimal.Decimal, precision int, small bool) string {
	if n.IsNaN() {
		return "NaN"
	}
	if n.Sign() < 0 {
		return "-" + Format(n.Neg(), precision, small)
	}
	if n.IsInf() {
		return "Infinity"
	}
	switch {
	case n.Gte(towerFloor):
		slog := n.Slog()
		floor := slog.Floor()
		if slog.Gte(million) {
			return "F" + Format(floor, DefaultDecimals, false)
		}
		return decimal.Pow10(slog.Sub(floor)).StringFixed(3) + "F" + comma(floor, 0)
	case n.Gte(millionE):
		return exponential(n, 0, false)
	case n.Gte(tenThousandE):
		return exponential(n, 0, true)
	case n.Gte(billion):
		return exponential(n, precision, true)
	case n.Gte(thousand):
		return comma(n, 0)
	case n.Gte(smallFloor) || !small:
		return regular(n, precision)
	case n.IsZero():
		return strconv.FormatFloat(0, 'f', precision, 64)
	}

	n = invertOOM(n)
	if n.Lt(oneE1000) {
		val := exponential(n, precision, true)
		idx := strings.LastIndexAny(val, "eF")
		return val[:idx+1] + "-" + val[idx+1:]
	}
	return Format(n, precision, false) + "⁻¹"
}

// FormatWhole renders n without decimals unless it is a small fraction.
func FormatWhole(n decimal.Decimal) string {
	if n.Sign() < 0 {
		return "-" + FormatWhole(n.Neg())
	}
	if n.Gte(billion) {
		return Format(n, DefaultDecimals, false)
	}
	if n.Lte(wholeCutoff) && !n.IsZero() {
		return Format(n, DefaultDecimals, false)
	}
	return Format(n, 0, false)
}

// FormatSmall is Format with small values enabled.
func FormatSmall(n decimal.Decimal, precision int) string {
	return Format(n, precision, true)
}

// FormatTime renders a duration in seconds as "1d 2h 3m 4.00s".
func FormatTime(seconds float64) string {
	if seconds < 0 {
		return "-" + FormatTime(-seconds)
	}
	whole := func(v float64) string { return FormatWhole(decimal.FromFloat(v)) }
	secs := Format(decimal.FromFloat(modulo(seconds, 60)), DefaultDecimals, false) + "s"
	switch {
	case seconds < 60:
		return Format(decimal.FromFloat(seconds), DefaultDecimals, false) + "s"
	case seconds < 3600:
		return whole(floor(seconds/60)) + "m " + secs
	case seconds < 86400:
		return whole(floor(seconds/3600)) + "h " + whole(modulo(floor(seconds/60), 60)) + "m " + secs
	default:
		return whole(modulo(floor(seconds/86400), 365)) + "d " +
			whole(modulo(floor(seconds/3600), 24)) + "h " +
			whole(modulo(floor(seconds/60), 60)) + "m " + secs
	}
}

func exponential(n decimal.Decimal, precision int, mantissa bool) string {
	e := n.Log10().Floor()
	m := n.Div(decimal.Pow10(e))
	if m.StringFixed(precision) == "10" {
		m = decimal.One
		e = e.Add(decimal.One)
	}
	var exp string
	switch {
	case e.Gte(billion):
		exp = Format(e, max(precision, 3, DefaultDecimals), false)
	case e.Gte(tenThousand):
		exp = comma(e, 0)
	default:
		exp = e.StringFixed(0)
	}
	if mantissa {
		return m.StringFixed(precision) + "e" + exp
	}
	return "e" + exp
}

func comma(n decimal.Decimal, precision int) string {
	if n.Lt(thousandth) {
		return strconv.FormatFloat(0, 'f', precision, 64)
	}
	init := n.StringFixed(precision)
	intPart, frac, hasFrac := strings.Cut(init, ".")
	if v, err := strconv.ParseInt(intPart, 10, 64); err == nil {
		intPart = printer.Sprintf("%d", v)
	}
	if !hasFrac {
		return intPart
	}
	return intPart + "." + frac
}

func regular(n decimal.Decimal, precision int) string {
	if n.Lt(smallFloor) {
		return strconv.FormatFloat(0, 'f', precision, 64)
	}
	if n.Lt(tenth) && precision != 0 {
		precision = max(precision, 4)
	}
	return n.StringFixed(precision)
}

// invertOOM maps 10^-k·m to 10^k·m so tiny values share the exponent path.
func invertOOM(n decimal.Decimal) decimal.Decimal {
	e := n.Log10().Ceil()
	m := n.Div(decimal.Pow10(e))
	return decimal.Pow10(e.Neg()).Mul(m)
}

func floor(v float64) float64 {
	return decimal.FromFloat(v).Floor().Float64()
}

func modulo(v, m float64) float64 {
	r := v - m*floor(v/m)
	if r < 0 {
		r += m
	}
	return r
}
