// Package decimal implements a number type whose magnitude can grow far past
// float64 range by stacking powers of ten.
//
// A Decimal is stored as sign × 10↑…↑mag where the exponentiation is applied
// layer times. Layer 0 holds ordinary floats; layer 1 holds 10^mag; layer 2
// holds 10^10^mag and so on. Values smaller than the float64 range collapse to
// zero, which is acceptable for game quantities.
package decimal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	maxSafe   = 9007199254740991.0
	layerDown = 15.954589770191003 // log10(maxSafe)
)

// ErrSyntax is returned when a string cannot be parsed as a Decimal.
var ErrSyntax = errors.New("decimal: invalid syntax")

// Decimal is an immutable arbitrary-magnitude number. The zero value is 0.
type Decimal struct {
	sign  int8
	layer int64
	mag   float64
}

var (
	Zero = Decimal{}
	One  = Decimal{sign: 1, mag: 1}
)

// Inf returns positive infinity.
func Inf() Decimal {
	return Decimal{sign: 1, mag: math.Inf(1)}
}

// NaN returns the not-a-number value.
func NaN() Decimal {
	return Decimal{mag: math.NaN()}
}

// New builds a Decimal from raw components and normalizes it.
func New(sign int, layer int64, mag float64) Decimal {
	switch {
	case sign > 0:
		return normalize(1, layer, mag)
	case sign < 0:
		return normalize(-1, layer, mag)
	default:
		return Zero
	}
}

// FromFloat converts a float64.
func FromFloat(f float64) Decimal {
	if math.IsNaN(f) {
		return NaN()
	}
	switch {
	case f > 0:
		return normalize(1, 0, f)
	case f < 0:
		return normalize(-1, 0, -f)
	default:
		return Zero
	}
}

// FromInt converts an int64.
func FromInt(i int64) Decimal {
	return FromFloat(float64(i))
}

// Tetrate10 returns 10↑↑n.
func Tetrate10(n int) Decimal {
	d := One
	for i := 0; i < n; i++ {
		d = Pow10(d)
	}
	return d
}

func normalize(sign int8, layer int64, mag float64) Decimal {
	if math.IsNaN(mag) {
		return NaN()
	}
	if sign == 0 {
		return Zero
	}
	if layer == 0 && mag < 0 {
		sign = -sign
		mag = -mag
	}
	if layer < 0 {
		layer = 0
	}
	if math.IsInf(mag, 1) {
		return Decimal{sign: sign, mag: mag}
	}
	for {
		if layer == 0 {
			if mag > maxSafe {
				mag = math.Log10(mag)
				layer = 1
				continue
			}
			break
		}
		if mag > maxSafe {
			mag = math.Log10(mag)
			layer++
			continue
		}
		if mag < layerDown {
			mag = math.Pow(10, mag)
			layer--
			continue
		}
		break
	}
	if layer == 0 && mag == 0 {
		return Zero
	}
	return Decimal{sign: sign, layer: layer, mag: mag}
}

// Sign reports -1, 0 or 1.
func (d Decimal) Sign() int { return int(d.sign) }

// Layer exposes the number of stacked exponentiations.
func (d Decimal) Layer() int64 { return d.layer }

// Mag exposes the top-layer magnitude.
func (d Decimal) Mag() float64 { return d.mag }

func (d Decimal) IsNaN() bool  { return math.IsNaN(d.mag) }
func (d Decimal) IsInf() bool  { return math.IsInf(d.mag, 0) }
func (d Decimal) IsZero() bool { return d.sign == 0 && !d.IsNaN() }

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	d.sign = -d.sign
	return d
}

// Abs returns |d|.
func (d Decimal) Abs() Decimal {
	if d.sign < 0 {
		d.sign = 1
	}
	return d
}

func cmpAbs(a, b Decimal) int {
	aInf, bInf := a.IsInf(), b.IsInf()
	switch {
	case aInf && bInf:
		return 0
	case aInf:
		return 1
	case bInf:
		return -1
	}
	if a.sign == 0 || b.sign == 0 {
		switch {
		case a.sign == 0 && b.sign == 0:
			return 0
		case a.sign == 0:
			return -1
		default:
			return 1
		}
	}
	if a.layer != b.layer {
		if a.layer > b.layer {
			return 1
		}
		return -1
	}
	switch {
	case a.mag > b.mag:
		return 1
	case a.mag < b.mag:
		return -1
	default:
		return 0
	}
}

// Cmp returns -1, 0 or 1. NaN compares equal to nothing useful and callers
// should check IsNaN first.
func (d Decimal) Cmp(o Decimal) int {
	if d.sign != o.sign {
		if d.sign > o.sign {
			return 1
		}
		return -1
	}
	return cmpAbs(d, o) * int(d.sign)
}

func (d Decimal) Eq(o Decimal) bool  { return !d.IsNaN() && !o.IsNaN() && d.Cmp(o) == 0 }
func (d Decimal) Lt(o Decimal) bool  { return !d.IsNaN() && !o.IsNaN() && d.Cmp(o) < 0 }
func (d Decimal) Lte(o Decimal) bool { return !d.IsNaN() && !o.IsNaN() && d.Cmp(o) <= 0 }
func (d Decimal) Gt(o Decimal) bool  { return !d.IsNaN() && !o.IsNaN() && d.Cmp(o) > 0 }
func (d Decimal) Gte(o Decimal) bool { return !d.IsNaN() && !o.IsNaN() && d.Cmp(o) >= 0 }

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.Gte(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Lte(b) {
		return a
	}
	return b
}

// log10Abs returns log10|d| as a float for values at layer 0 or 1.
func (d Decimal) log10Abs() float64 {
	if d.layer == 0 {
		return math.Log10(d.mag)
	}
	return d.mag
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) Decimal {
	if d.IsNaN() || o.IsNaN() {
		return NaN()
	}
	if d.sign == 0 {
		return o
	}
	if o.sign == 0 {
		return d
	}
	if d.IsInf() || o.IsInf() {
		if d.IsInf() && o.IsInf() && d.sign != o.sign {
			return NaN()
		}
		if d.IsInf() {
			return d
		}
		return o
	}
	if d.layer == 0 && o.layer == 0 {
		return FromFloat(float64(d.sign)*d.mag + float64(o.sign)*o.mag)
	}
	big, small := d, o
	if cmpAbs(d, o) < 0 {
		big, small = o, d
	}
	if cmpAbs(big, small) == 0 && big.sign != small.sign {
		return Zero
	}
	if big.layer >= 2 {
		return big
	}
	lb := big.mag
	diff := small.log10Abs() - lb
	if diff < -17 {
		return big
	}
	var l float64
	if big.sign == small.sign {
		l = lb + math.Log10(1+math.Pow(10, diff))
	} else {
		f := 1 - math.Pow(10, diff)
		if f <= 0 {
			return Zero
		}
		l = lb + math.Log10(f)
	}
	return normalize(big.sign, 1, l)
}

// Sub returns d - o.
func (d Decimal) Sub(o Decimal) Decimal {
	return d.Add(o.Neg())
}

func withSign(d Decimal, sign int8) Decimal {
	if d.sign == 0 || d.IsNaN() {
		return d
	}
	d.sign = sign
	return d
}

// Mul returns d × o.
func (d Decimal) Mul(o Decimal) Decimal {
	if d.IsNaN() || o.IsNaN() {
		return NaN()
	}
	if d.sign == 0 || o.sign == 0 {
		if d.IsInf() || o.IsInf() {
			return NaN()
		}
		return Zero
	}
	sign := d.sign * o.sign
	if d.IsInf() || o.IsInf() {
		return Decimal{sign: sign, mag: math.Inf(1)}
	}
	if d.layer == 0 && o.layer == 0 {
		if p := d.mag * o.mag; !math.IsInf(p, 0) && p != 0 {
			return normalize(sign, 0, p)
		}
	}
	l := d.Abs().Log10().Add(o.Abs().Log10())
	return withSign(Pow10(l), sign)
}

// Div returns d / o. Division by zero yields NaN; callers guard against it.
func (d Decimal) Div(o Decimal) Decimal {
	if d.IsNaN() || o.IsNaN() || o.sign == 0 {
		return NaN()
	}
	if d.sign == 0 {
		return Zero
	}
	sign := d.sign * o.sign
	if o.IsInf() {
		if d.IsInf() {
			return NaN()
		}
		return Zero
	}
	if d.IsInf() {
		return Decimal{sign: sign, mag: math.Inf(1)}
	}
	if d.layer == 0 && o.layer == 0 {
		if q := d.mag / o.mag; !math.IsInf(q, 0) && q != 0 {
			return normalize(sign, 0, q)
		}
	}
	l := d.Abs().Log10().Sub(o.Abs().Log10())
	return withSign(Pow10(l), sign)
}

// Recip returns 1 / d.
func (d Decimal) Recip() Decimal {
	return One.Div(d)
}

// Log10 returns log10(d) for d > 0 and NaN otherwise.
func (d Decimal) Log10() Decimal {
	if d.IsNaN() || d.sign <= 0 {
		return NaN()
	}
	if d.IsInf() {
		return d
	}
	if d.layer == 0 {
		return FromFloat(math.Log10(d.mag))
	}
	return normalize(1, d.layer-1, d.mag)
}

// Log returns the logarithm of d in the given base.
func (d Decimal) Log(base Decimal) Decimal {
	return d.Log10().Div(base.Log10())
}

// Pow10 returns 10^x.
func Pow10(x Decimal) Decimal {
	if x.IsNaN() {
		return NaN()
	}
	if x.IsInf() {
		if x.sign > 0 {
			return x
		}
		return Zero
	}
	switch {
	case x.sign == 0:
		return One
	case x.sign > 0:
		return normalize(1, x.layer+1, x.mag)
	case x.layer == 0:
		return FromFloat(math.Pow(10, -x.mag))
	default:
		return Zero
	}
}

// Pow returns d^e. Negative bases only support integral exponents.
func (d Decimal) Pow(e Decimal) Decimal {
	if d.IsNaN() || e.IsNaN() {
		return NaN()
	}
	if e.sign == 0 {
		return One
	}
	if d.sign == 0 {
		if e.sign > 0 {
			return Zero
		}
		return Inf()
	}
	sign := int8(1)
	if d.sign < 0 {
		if e.layer != 0 || e.mag != math.Trunc(e.mag) {
			return NaN()
		}
		if math.Mod(e.mag, 2) == 1 {
			sign = -1
		}
	}
	if d.layer == 0 && e.layer == 0 {
		p := math.Pow(d.mag, float64(e.sign)*e.mag)
		if !math.IsInf(p, 0) && p != 0 {
			return normalize(sign, 0, p)
		}
	}
	return withSign(Pow10(d.Abs().Log10().Mul(e)), sign)
}

// Slog returns the base-10 super-logarithm, using the linear approximation
// on [0, 1].
func (d Decimal) Slog() Decimal {
	switch {
	case d.IsNaN() || d.sign < 0:
		return NaN()
	case d.sign == 0:
		return FromFloat(-1)
	case d.IsInf():
		return Inf()
	}
	result := float64(d.layer)
	x := d.mag
	for i := 0; i < 100; i++ {
		if x <= 1 {
			return FromFloat(result + x - 1)
		}
		result++
		x = math.Log10(x)
	}
	return FromFloat(result)
}

func (d Decimal) roundWith(fn func(float64) float64) Decimal {
	if d.layer > 0 || d.IsInf() || d.IsNaN() {
		return d
	}
	return FromFloat(fn(float64(d.sign) * d.mag))
}

func (d Decimal) Floor() Decimal { return d.roundWith(math.Floor) }
func (d Decimal) Ceil() Decimal  { return d.roundWith(math.Ceil) }
func (d Decimal) Round() Decimal { return d.roundWith(math.Round) }

// Float64 converts to float64, saturating to ±Inf.
func (d Decimal) Float64() float64 {
	switch {
	case d.IsNaN():
		return math.NaN()
	case d.sign == 0:
		return 0
	case d.layer == 0:
		return float64(d.sign) * d.mag
	case d.layer == 1:
		return float64(d.sign) * math.Pow(10, d.mag)
	default:
		return float64(d.sign) * math.Inf(1)
	}
}

// String renders d in a form Parse reads back exactly.
func (d Decimal) String() string {
	switch {
	case d.IsNaN():
		return "NaN"
	case d.IsInf():
		if d.sign < 0 {
			return "-Infinity"
		}
		return "Infinity"
	}
	var b strings.Builder
	if d.sign < 0 {
		b.WriteByte('-')
	}
	switch {
	case d.layer == 0:
	case d.layer <= 5:
		b.WriteString(strings.Repeat("e", int(d.layer)))
	default:
		fmt.Fprintf(&b, "(e^%d)", d.layer)
	}
	b.WriteString(strconv.FormatFloat(d.mag, 'g', -1, 64))
	return b.String()
}

// StringFixed renders layer-0 values with the given number of decimal places.
func (d Decimal) StringFixed(places int) string {
	if d.layer > 0 || d.IsInf() || d.IsNaN() {
		return d.String()
	}
	if places < 0 {
		places = 0
	}
	return strconv.FormatFloat(float64(d.sign)*d.mag, 'f', places, 64)
}

// Parse reads plain floats ("12.5", "1e400"), layered forms ("ee100",
// "(e^7)1e10") and "Infinity"/"NaN".
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return Zero, fmt.Errorf("%w: empty string", ErrSyntax)
	case "nan":
		return NaN(), nil
	case "infinity", "+infinity", "inf":
		return Inf(), nil
	case "-infinity", "-inf":
		return Inf().Neg(), nil
	}
	raw := s
	sign := int8(1)
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	}
	var layer int64
	if strings.HasPrefix(s, "(e^") {
		end := strings.Index(s, ")")
		if end < 0 {
			return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
		n, err := strconv.ParseInt(s[3:end], 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
		layer = n
		s = s[end+1:]
	}
	for strings.HasPrefix(s, "e") {
		layer++
		s = s[1:]
	}
	mag, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
		return parseOutOfRange(sign, layer, s, raw)
	}
	if mag == 0 {
		return Zero, nil
	}
	return normalize(sign, layer, mag), nil
}

// parseOutOfRange handles mantissa/exponent strings beyond float64 range.
func parseOutOfRange(sign int8, layer int64, s, raw string) (Decimal, error) {
	idx := strings.IndexAny(s, "eE")
	if idx < 0 {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
	}
	m, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil || m == 0 {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
	}
	exp, err := strconv.ParseFloat(s[idx+1:], 64)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, raw)
	}
	if m < 0 {
		sign = -sign
		m = -m
	}
	return normalize(sign, layer+1, math.Log10(m)+exp), nil
}

// MustParse is Parse that panics on malformed input. Intended for constants.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalJSON encodes d as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a JSON string or number.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	if string(data) == "null" {
		*d = Zero
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
