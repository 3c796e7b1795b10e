// Package call composes error-returning steps into a single pipeline that
// stops at the first failure
package call

// Call is a deferred step that may fail
type Call func() error

// Perform runs each step in order, returning the first error encountered
func Perform(calls ...Call) error {
	for _, c := range calls {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// WithArg binds a single argument to a step
func WithArg[A any](fn func(A) error, arg A) Call {
	return func() error {
		return fn(arg)
	}
}

// WithArgs binds two arguments to a step
func WithArgs[A, B any](fn func(A, B) error, a A, b B) Call {
	return func() error {
		return fn(a, b)
	}
}

// ForEach applies fn to every item, stopping at the first error
func ForEach[T any](items []T, fn func(T) error) Call {
	return func() error {
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}
}
