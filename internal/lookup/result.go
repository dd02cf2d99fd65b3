// Package lookup models best-effort external lookups whose failure must not
// abort an export.
package lookup

// Result carries a looked-up value. Degraded is set when the value is a
// fallback produced because the lookup failed, as opposed to a value that is
// legitimately empty because the linked record does not exist.
type Result[T any] struct {
	Value    T
	Degraded bool
	Err      error
}

// OK wraps a successfully resolved value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Degrade wraps a fallback value together with the error that caused it.
func Degrade[T any](fallback T, err error) Result[T] {
	return Result[T]{Value: fallback, Degraded: true, Err: err}
}
