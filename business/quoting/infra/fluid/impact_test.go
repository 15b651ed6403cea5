package fluid

import (
	"math"
	"math/big"
	"testing"
)

func TestPriceImpact_LinearRegime(t *testing.T) {
	p := DefaultImpactPolicy()

	tests := []struct {
		ratio float64
		want  float64
	}{
		{0.001, 0.0005},
		{0.005, 0.0025},
		{0.01, 0.005}, // at the boundary
	}
	for _, tt := range tests {
		got := p.priceImpact(tt.ratio, 0.5)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ratio %f: expected impact %f, got %f", tt.ratio, tt.want, got)
		}
	}
}

func TestPriceImpact_ZeroAndNegativeRatios(t *testing.T) {
	p := DefaultImpactPolicy()
	if got := p.priceImpact(0, 0.5); got != 0 {
		t.Errorf("zero ratio: expected 0, got %f", got)
	}
	if got := p.priceImpact(-0.5, 0.5); got != 0 {
		t.Errorf("negative ratio: expected 0, got %f", got)
	}
}

func TestPriceImpact_QuadraticRegimeGrowsFromBoundary(t *testing.T) {
	p := DefaultImpactPolicy()

	atBoundary := p.priceImpact(p.LinearBoundary, 0.5)
	justPast := p.priceImpact(p.LinearBoundary+1e-6, 0.5)
	if justPast < atBoundary {
		t.Errorf("impact must not drop past the boundary: %f < %f", justPast, atBoundary)
	}

	small := p.priceImpact(0.02, 0.5)
	large := p.priceImpact(0.04, 0.5)
	if large <= small {
		t.Errorf("impact must grow with trade size: %f <= %f", large, small)
	}
	// 120 * 0.01^2 + 0.005 = 0.017 at ratio 0.02, centered pool.
	if math.Abs(small-0.017) > 1e-9 {
		t.Errorf("ratio 0.02: expected 0.017, got %f", small)
	}
}

func TestPriceImpact_OffCenterPoolAmplifies(t *testing.T) {
	p := DefaultImpactPolicy()
	centered := p.priceImpact(0.02, 0.5)
	skewed := p.priceImpact(0.02, 0.9)
	if skewed <= centered {
		t.Errorf("off-center pool must pay more impact: %f <= %f", skewed, centered)
	}
}

func TestPriceImpact_CappedAtMax(t *testing.T) {
	p := DefaultImpactPolicy()
	if got := p.priceImpact(0.5, 1.0); got != p.MaxImpact {
		t.Errorf("expected cap %f, got %f", p.MaxImpact, got)
	}
}

func TestGeometricMeanPrice(t *testing.T) {
	upper := scaled27(1.0002)
	lower := scaled27(0.9996)
	gm := geometricMeanPrice(upper, lower)
	want := math.Sqrt(1.0002 * 0.9996)
	if math.Abs(gm-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, gm)
	}
}

func TestRangePosition(t *testing.T) {
	tests := []struct {
		name                 string
		center, upper, lower float64
		want                 float64
	}{
		{"centered", 1.0, 1.5, 0.5, 0.5},
		{"at lower edge", 0.5, 1.5, 0.5, 0.0},
		{"at upper edge", 1.5, 1.5, 0.5, 1.0},
		{"below range clamps", 0.2, 1.5, 0.5, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rangePosition(scaled27(tt.center), scaled27(tt.upper), scaled27(tt.lower))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestRangePosition_DegenerateRangeIsMidpoint(t *testing.T) {
	one := scaled27(1.0)
	if got := rangePosition(one, one, one); got != 0.5 {
		t.Errorf("expected 0.5 for zero-width range, got %f", got)
	}
	if got := rangePosition(one, scaled27(0.9), scaled27(1.1)); got != 0.5 {
		t.Errorf("expected 0.5 for inverted range, got %f", got)
	}
}

func TestScaled27RoundTrip(t *testing.T) {
	v := scaled27(0.9999)
	want, _ := new(big.Int).SetString("999900000000000000000000000", 10)
	diff := new(big.Int).Sub(v, want)
	diff.Abs(diff)
	// float64 conversion wobble stays under 1e11 at this scale.
	if diff.Cmp(big.NewInt(100_000_000_000)) > 0 {
		t.Errorf("expected ~%s, got %s", want, v)
	}
}
