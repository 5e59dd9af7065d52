package gen

import (
	"math"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// largest magnitude an integer survives a float64 round trip with
const maxSafeInteger = 1 << 53

// Bounds is the exact numeric constraint of a leaf. Both spellings of
// exclusivity are understood: the draft 4 boolean modifying minimum or
// maximum, and the later standalone number.
type Bounds struct {
	Min, Max         float64
	HasMin, HasMax   bool
	MinOpen, MaxOpen bool
}

func LeafBounds(l *resolve.Leaf) Bounds {
	var b Bounds
	if l.Minimum != nil {
		b.Min, b.HasMin = *l.Minimum, true
	}
	if l.Maximum != nil {
		b.Max, b.HasMax = *l.Maximum, true
	}

	switch x := l.ExclusiveMinimum.(type) {
	case bool:
		b.MinOpen = x && b.HasMin
	default:
		if f, ok := value.Float(x); ok && (!b.HasMin || f >= b.Min) {
			b.Min, b.HasMin, b.MinOpen = f, true, true
		}
	}
	switch x := l.ExclusiveMaximum.(type) {
	case bool:
		b.MaxOpen = x && b.HasMax
	default:
		if f, ok := value.Float(x); ok && (!b.HasMax || f <= b.Max) {
			b.Max, b.HasMax, b.MaxOpen = f, true, true
		}
	}
	return b
}

func (b Bounds) Contains(x float64) bool {
	if b.HasMin && (x < b.Min || b.MinOpen && x == b.Min) {
		return false
	}
	if b.HasMax && (x > b.Max || b.MaxOpen && x == b.Max) {
		return false
	}
	return true
}

// IntRange is the closed integer interval to sample from, as integral
// float64 bounds. Exclusive bounds are tightened by one step up front,
// missing ones fall back to width around the present bound or zero. Past
// 2^53 one step is the distance to the next float64, which is integral
// there too.
func (b Bounds) IntRange(width int64) (lo, hi float64, ok bool) {
	lo, hi = float64(-width), float64(width)
	if b.HasMin {
		lo = math.Ceil(b.Min)
		if b.MinOpen && lo == b.Min {
			lo = step(lo, math.Inf(1))
		}
	}
	if b.HasMax {
		hi = math.Floor(b.Max)
		if b.MaxOpen && hi == b.Max {
			hi = step(hi, math.Inf(-1))
		}
	}
	switch {
	case b.HasMin && !b.HasMax:
		hi = lo + 2*float64(width)
	case !b.HasMin && b.HasMax:
		lo = hi - 2*float64(width)
	}
	if lo > hi || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 0, false
	}
	return lo, hi, true
}

func step(x, toward float64) float64 {
	if math.Abs(x) < maxSafeInteger {
		return x + math.Copysign(1, toward)
	}
	return math.Nextafter(x, toward)
}

// Safe reports that every integer in [lo, hi] is exact as a float64.
func Safe(lo, hi float64) bool {
	return lo >= -maxSafeInteger && hi <= maxSafeInteger
}

// Integral is the JSON value of the integral float64 x: an int64 while it
// is exact, the float64 itself past that.
func Integral(x float64) any {
	if math.Abs(x) <= maxSafeInteger {
		return int64(x)
	}
	return x
}

// FloatRange is the closed real interval to sample from; an open bound is
// moved to the next representable float64.
func (b Bounds) FloatRange(width float64) (lo, hi float64, ok bool) {
	lo, hi = -width, width
	if b.HasMin {
		lo = b.Min
		if b.MinOpen {
			lo = math.Nextafter(lo, math.Inf(1))
		}
	}
	if b.HasMax {
		hi = b.Max
		if b.MaxOpen {
			hi = math.Nextafter(hi, math.Inf(-1))
		}
	}
	switch {
	case b.HasMin && !b.HasMax:
		hi = lo + 2*width
	case !b.HasMin && b.HasMax:
		lo = hi - 2*width
	}
	if lo > hi || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 0, false
	}
	return lo, hi, true
}
