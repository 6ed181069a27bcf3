package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Ptr returns a pointer to a copy of v. Handy for the optional fields of the glTF document.
func Ptr[T any](v T) *T {
	return &v
}

// AlignTo rounds n up to the next multiple of align. align must be a power of two.
//
// Parameters:
//   - n: the value to round up
//   - align: the alignment boundary
//
// Returns:
//   - int: the aligned value
func AlignTo(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
