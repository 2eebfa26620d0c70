// Package region implements the wrap-aware rectangle used to scope both
// persistence queries and session broadcasts over the toroidal map.
package region

// ViewportRadiusX and ViewportRadiusY define the area of interest a
// session's broadcasts and snapshot queries are scoped to, centred on its
// cursor.
const (
	ViewportRadiusX = 30
	ViewportRadiusY = 20
)

// Region is a rectangle [XMin, XMax] x [YMin, YMax] interpreted modulo the
// map dimensions. When XMin <= XMax the X interval is contiguous; otherwise
// it wraps (x >= XMin || x <= XMax). Same for Y.
type Region struct {
	XMin, XMax int
	YMin, YMax int
}

// Centered builds the region of the given half-widths around (x, y),
// wrapped into [0, w) x [0, h).
func Centered(x, y, radiusX, radiusY, w, h int) Region {
	return Region{
		XMin: wrap(x-radiusX, w),
		XMax: wrap(x+radiusX, w),
		YMin: wrap(y-radiusY, h),
		YMax: wrap(y+radiusY, h),
	}
}

// Contains reports whether (x, y) satisfies the wrap-aware interval
// predicate for both axes. x and y are assumed already normalized into
// [0, w) x [0, h); callers that hold raw coordinates should wrap them
// first via Wrap.
func (r Region) Contains(x, y int) bool {
	return intervalContains(r.XMin, r.XMax, x) && intervalContains(r.YMin, r.YMax, y)
}

func intervalContains(lo, hi, v int) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

// Wrap reduces v into [0, mod) using floored (never-negative) modulo.
func Wrap(v, mod int) int {
	v %= mod
	if v < 0 {
		v += mod
	}
	return v
}

func wrap(v, mod int) int {
	return Wrap(v, mod)
}
