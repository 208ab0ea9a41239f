package streams

import "errors"

// errInterrupted is the internal sentinel used by the Pull interpreter to
// signal that a scope was interrupted. It never escapes to a caller: the
// interpreter converts it into the Interrupted case of stepResult before
// returning.
var errInterrupted = errors.New("streams: interrupted")

// ErrScopeLookupFailure reports that the interpreter could not find a scope
// it expected to exist (e.g. a Step whose scope Token is no longer present
// in the scope tree). It signals a bug in how a Pull program
// was assembled rather than a runtime failure of user code, and callers
// should treat it as fatal.
var ErrScopeLookupFailure = errors.New("streams: scope lookup failure")

// CompositeFailure aggregates a primary error together with any further
// errors raised while unwinding (e.g. a release action failing after the
// body already failed). It is built directly on errors.Join so it composes
// with errors.Is/errors.As the way the rest of the standard library expects.
type CompositeFailure struct {
	Primary    error
	Suppressed []error
	joined     error
}

// NewCompositeFailure builds a CompositeFailure from a primary error and any
// number of suppressed errors collected while closing a scope. If there are
// no suppressed errors, it returns primary unchanged.
func NewCompositeFailure(primary error, suppressed ...error) error {
	if len(suppressed) == 0 {
		return primary
	}
	all := make([]error, 0, len(suppressed)+1)
	all = append(all, primary)
	all = append(all, suppressed...)
	return &CompositeFailure{
		Primary:    primary,
		Suppressed: suppressed,
		joined:     errors.Join(all...),
	}
}

func (c *CompositeFailure) Error() string {
	return c.joined.Error()
}

func (c *CompositeFailure) Unwrap() []error {
	return append([]error{c.Primary}, c.Suppressed...)
}

// UserError wraps an error raised by user-supplied code (an Eval effect, a
// predicate, a fold step) so the interpreter and its callers can tell it
// apart from an internal protocol failure like ErrScopeLookupFailure.
type UserError struct {
	Err error
}

func (u *UserError) Error() string {
	return u.Err.Error()
}

func (u *UserError) Unwrap() error {
	return u.Err
}

// WrapUserError tags err as having originated from user code. It returns
// nil unchanged.
func WrapUserError(err error) error {
	if err == nil {
		return nil
	}
	return &UserError{Err: err}
}
