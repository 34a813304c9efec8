package tensor

import "math"

// IsExactlyEqual reports whether both tensors have the same sizes and
// every pair of corresponding elements compares equal.
func (t *Tensor[T]) IsExactlyEqual(other *Tensor[T]) bool {
	return t.equal(other, func(a, b T) bool { return a == b })
}

// IsApproximatelyEqual is IsExactlyEqual for integral types. For floating
// types each element pair must satisfy
// |a-b| <= relativeError * max(|a|, |b|, 1).
func (t *Tensor[T]) IsApproximatelyEqual(other *Tensor[T], relativeError float64) bool {
	if !t.DType().IsFloating() {
		return t.IsExactlyEqual(other)
	}
	return t.equal(other, func(a, b T) bool {
		x, y := float64(a), float64(b)
		if x == y {
			return true
		}
		bound := math.Max(math.Max(math.Abs(x), math.Abs(y)), 1)
		return math.Abs(x-y) <= relativeError*bound
	})
}

func (t *Tensor[T]) equal(other *Tensor[T], eq func(a, b T) bool) bool {
	if t.IsEmpty() != other.IsEmpty() || !Shape(t.sizes).Equal(other.sizes) {
		return false
	}
	a, b := t.Values(), other.Values()
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}
