package decimal

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalizePromotesLargeValues(t *testing.T) {
	d := FromFloat(1e20)
	if d.Layer() != 1 {
		t.Fatalf("expected layer 1, got %d", d.Layer())
	}
	if math.Abs(d.Mag()-20) > 1e-12 {
		t.Fatalf("expected mag 20, got %v", d.Mag())
	}
	back := New(1, 1, 3)
	if back.Layer() != 0 || back.Mag() != 1000 {
		t.Fatalf("expected 1000 at layer 0, got layer=%d mag=%v", back.Layer(), back.Mag())
	}
}

func TestArithmeticLayerZero(t *testing.T) {
	cases := []struct {
		name string
		got  Decimal
		want float64
	}{
		{"add", FromFloat(90).Add(FromFloat(10)), 100},
		{"sub", FromFloat(100).Sub(FromFloat(10)), 90},
		{"mul", FromFloat(12).Mul(FromFloat(3)), 36},
		{"div", FromFloat(12).Div(FromFloat(3)), 4},
		{"pow", FromFloat(2).Pow(FromFloat(10)), 1024},
		{"floor", FromFloat(12.7).Floor(), 12},
		{"ceil", FromFloat(12.2).Ceil(), 13},
		{"neg floor", FromFloat(-1.5).Floor(), -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.got.Float64(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestArithmeticHighLayers(t *testing.T) {
	big := MustParse("e1000")
	if !big.Mul(big).Eq(MustParse("e2000")) {
		t.Fatalf("expected e1000 * e1000 = e2000, got %s", big.Mul(big))
	}
	if !big.Div(big).Eq(One) {
		t.Fatalf("expected e1000 / e1000 = 1, got %s", big.Div(big))
	}
	if !big.Add(One).Eq(big) {
		t.Fatalf("expected tiny addend to vanish")
	}
	if !big.Sub(big).IsZero() {
		t.Fatalf("expected x - x = 0, got %s", big.Sub(big))
	}
	if got := big.Log10(); !got.Eq(FromFloat(1000)) {
		t.Fatalf("expected log10(e1000) = 1000, got %s", got)
	}
	sum := FromFloat(5e15).Add(FromFloat(5e15))
	if math.Abs(sum.Float64()-1e16)/1e16 > 1e-12 {
		t.Fatalf("expected 1e16, got %v", sum.Float64())
	}
}

func TestCompareAcrossLayers(t *testing.T) {
	ordered := []Decimal{
		Inf().Neg(),
		MustParse("-e500"),
		FromFloat(-3),
		Zero,
		FromFloat(0.5),
		FromFloat(1e15),
		MustParse("e100"),
		MustParse("ee100"),
		Tetrate10(8),
		Inf(),
	}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Lt(ordered[i]) {
			t.Fatalf("expected %s < %s", ordered[i-1], ordered[i])
		}
	}
}

func TestSlog(t *testing.T) {
	cases := []struct {
		in   Decimal
		want float64
	}{
		{FromFloat(10), 1},
		{FromFloat(1e10), 2},
		{Tetrate10(8), 8},
		{One, 0},
		{Zero, -1},
	}
	for _, tc := range cases {
		if got := tc.in.Slog().Float64(); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("slog(%s): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestTetrate10Layers(t *testing.T) {
	if got := Tetrate10(2).Float64(); got != 1e10 {
		t.Fatalf("expected 10^^2 = 1e10, got %v", got)
	}
	eight := Tetrate10(8)
	if eight.Layer() != 6 || eight.Mag() != 1e10 {
		t.Fatalf("expected layer 6 mag 1e10, got layer=%d mag=%v", eight.Layer(), eight.Mag())
	}
}

func TestParseAndStringRoundTrip(t *testing.T) {
	inputs := []string{"0", "1", "-12.5", "1e+15", "e20", "-e400", "ee1e+20", "(e^7)1e+10", "Infinity"}
	for _, in := range inputs {
		d, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		again, err := Parse(d.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", d.String(), err)
		}
		if again != d {
			t.Fatalf("round trip mismatch for %q: %#v vs %#v", in, d, again)
		}
	}
}

func TestParseOutOfRangeExponent(t *testing.T) {
	d, err := Parse("2e400")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Layer() != 1 || math.Abs(d.Mag()-(400+math.Log10(2))) > 1e-9 {
		t.Fatalf("unexpected components layer=%d mag=%v", d.Layer(), d.Mag())
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestJSONAcceptsStringsAndNumbers(t *testing.T) {
	var payload struct {
		A Decimal `json:"a"`
		B Decimal `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"e100","b":42}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.A.Eq(MustParse("e100")) || payload.B.Float64() != 42 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"a":"e100","b":"42"}` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestDivisionByZeroIsNaN(t *testing.T) {
	if !One.Div(Zero).IsNaN() {
		t.Fatalf("expected NaN")
	}
	if !Zero.Log10().IsNaN() {
		t.Fatalf("expected NaN for log10(0)")
	}
}
