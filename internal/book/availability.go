package book

import "math"

// Adjust applies a checkout (negative delta) or return (positive delta) to an
// available-copy count and returns the new count. It has no side effects; the
// caller persists the result. The pre-state is assumed to satisfy
// 0 <= available <= total.
//
// The bounds are compared without computing available+delta, so any int delta
// is classified correctly. On failure the returned count is the unchanged input.
func Adjust(available, total, delta int) (int, error) {
	if delta < -available {
		return available, insufficientCopies(available, magnitude(delta))
	}
	if delta > total-available {
		return available, invalidAdjustment(total)
	}
	return available + delta, nil
}

// magnitude is |delta| for a negative delta, saturating at math.MaxInt since
// -math.MinInt is not representable.
func magnitude(delta int) int {
	if delta == math.MinInt {
		return math.MaxInt
	}
	return -delta
}
