package common

// Coalesce picks the first argument that is not the zero value of its type. Labels and
// entry point names use it to fall back to a default when a caller leaves them empty.
//
// Parameters:
//   - values: candidates in order of preference
//
// Returns:
//   - T: the first non-zero candidate, or the zero value when every candidate is zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
