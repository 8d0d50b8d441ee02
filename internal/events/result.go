package events

import "fmt"

// Result carries either a value or a failure cause, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failure cause. A nil cause is replaced so the result still reads as a failure.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("unspecified failure")
	}
	return Result[T]{err: err}
}

// IsOk reports whether the result carries a value
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the value and the failure cause
func (r Result[T]) Value() (T, error) { return r.value, r.err }

// Err returns the failure cause, or nil on success
func (r Result[T]) Err() error { return r.err }

// Get returns the value, or the zero value on failure
func (r Result[T]) Get() T { return r.value }

func (r Result[T]) String() string {
	if r.err != nil {
		return "error: " + r.err.Error()
	}
	return fmt.Sprintf("%v", r.value)
}
