package pipeline

// Result is either a value or the reason it could not be produced.
type Result[T any] struct {
	value  T
	reason string
	ok     bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Failed records why no value exists.
func Failed[T any](reason string) Result[T] {
	if reason == "" {
		reason = "failed"
	}
	return Result[T]{reason: reason}
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.ok }

// Value returns the value and whether it is valid.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Reason returns the failure reason, or "" for successful results.
func (r Result[T]) Reason() string { return r.reason }
