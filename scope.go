package streams

import (
	"context"
	"sync"

	"github.com/ilxqx/go-collections"
)

// finalizerEntry pairs a registered release action with the ExitCase it
// should run under, the way bracket's release function needs to see how the
// resource's block ended.
type finalizerEntry struct {
	run func(ctx context.Context, ec ExitCase) error
}

// Scope is a node in the hierarchical resource-management tree described by
// spec.md §4.2: every Pull program runs inside a Scope, acquiring resources
// and registering finalizers against it, and opening a child Scope to
// delimit a nested resource lifetime (one iteration of a combinator, one
// branch of parJoin). Closing a Scope runs its finalizers in LIFO order and
// recurses into its children first, so an inner resource is always released
// before the outer one that outlives it.
//
// The parent/child tree and ancestor-walk lookups are grounded on
// uber-go-dig's Scope (parentScope/childScopes, getScopesFromRoot); the
// finalizer list and its close-time collect-then-run-outside-the-lock
// pattern are grounded on samber/ro's subscriptionImpl.
type Scope struct {
	id        Token
	parent    *Scope
	interrupt bool

	mu         sync.Mutex
	closed     bool
	closing    bool
	leases     int
	leaseZero  *Deferred[struct{}]
	children   collections.List[*Scope]
	finalizers collections.List[finalizerEntry]
	interruptD *Deferred[error] // non-nil only when interrupt is true
}

// Lease is a temporary extension of a Scope's liveness: while any Lease is
// outstanding, that Scope's Close blocks before running finalizers, the Go
// rendition of spec.md §4.2's "lease() ... close waits on a Deferred<Unit>
// that is completed when leases hits zero".
type Lease struct {
	scope *Scope
}

// Cancel releases the lease. Calling Cancel more than once on the same
// Lease is not supported, matching spec.md's one-shot Lease.cancel.
func (l *Lease) Cancel() {
	s := l.scope
	s.mu.Lock()
	s.leases--
	n := s.leases
	closing := s.closing
	s.mu.Unlock()
	if closing && n == 0 {
		s.leaseZero.Complete(struct{}{})
	}
}

// seqToSlice drains a collections.List via its Seq iterator into a plain
// slice snapshot, since the List interface exposes iteration (Seq) and
// insertion (Add/AddSeq) but no direct slice accessor.
func seqToSlice[T any](l collections.List[T]) []T {
	out := make([]T, 0)
	for v := range l.Seq() {
		out = append(out, v)
	}
	return out
}

// NewRootScope creates a top-level Scope with no parent. Each terminal
// operation of Compile opens one of these per run.
func NewRootScope() *Scope {
	return &Scope{
		id:         NewToken(),
		leaseZero:  NewDeferred[struct{}](),
		children:   collections.NewArrayList[*Scope](),
		finalizers: collections.NewArrayList[finalizerEntry](),
	}
}

// Lease increments this Scope's outstanding-lease count and returns a
// handle to release it later. It returns false if the Scope is already
// closed or in the process of closing, matching spec.md §4.2's
// "lease() ... Some only if Open".
func (s *Scope) Lease() (*Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.closing {
		return nil, false
	}
	s.leases++
	return &Lease{scope: s}, true
}

// Token returns the Scope's identity.
func (s *Scope) Token() Token {
	return s.id
}

// Parent returns the Scope's parent, or nil for a root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Open creates a child Scope nested inside s. interruptible marks the child
// as an interruption boundary: FindInterruptibleAncestor called from this
// child or one of its descendants stops there, so a later Interrupt call on
// this child reaches them rather than propagating further out, matching spec.md §4.2's
// "nearest interruptible ancestor" rule.
func (s *Scope) Open(interruptible bool) *Scope {
	child := &Scope{
		id:         NewToken(),
		parent:     s,
		interrupt:  interruptible,
		children:   collections.NewArrayList[*Scope](),
		finalizers: collections.NewArrayList[finalizerEntry](),
	}
	if interruptible {
		child.interruptD = NewDeferred[error]()
	}
	child.leaseZero = NewDeferred[struct{}]()
	s.mu.Lock()
	s.children.Add(child)
	s.mu.Unlock()
	return child
}

// RegisterFinalizer appends a release action to be run (LIFO) when the
// Scope closes. If the Scope is already closed, the action runs
// immediately with ExitSucceeded, mirroring samber/ro's
// Subscription.Add "already done" fast path.
func (s *Scope) RegisterFinalizer(ctx context.Context, run func(ctx context.Context, ec ExitCase) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return run(ctx, ExitSucceeded)
	}
	s.finalizers.Add(finalizerEntry{run: run})
	s.mu.Unlock()
	return nil
}

// Close runs this Scope's children's close logic depth-first, then blocks
// on any outstanding Leases before running this Scope's own finalizers in
// LIFO registration order, aggregating every error encountered into a
// single CompositeFailure. Matches spec.md §4.2's close algorithm: child-
// first, then lease drain, then self finalizers.
func (s *Scope) Close(ctx context.Context, ec ExitCase) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	children := seqToSlice(s.children)
	finalizers := seqToSlice(s.finalizers)
	outstanding := s.leases
	s.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Close(ctx, ec); err != nil {
			errs = append(errs, err)
		}
	}

	if outstanding > 0 {
		// Nudge any lease holder still polling InterruptRequested so Close
		// doesn't wait on a lease a cooperative branch has no other reason
		// to release (e.g. this Scope closing because an unrelated sibling
		// failed, not because anything signaled this branch directly).
		s.Interrupt(nil)
		if _, err := s.leaseZero.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for i := len(finalizers) - 1; i >= 0; i-- {
		if err := finalizers[i].run(ctx, ec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return NewCompositeFailure(errs[0], errs[1:]...)
}

// IsClosed reports whether Close has already completed for this Scope.
func (s *Scope) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Interrupt signals this Scope's interrupt Deferred, if it is an
// interruption boundary, with reason (nil for a plain cancellation, a
// non-nil error to carry a failure through the interrupt path). It returns
// false if this Scope is not interruptible, in which case the caller should
// walk to FindInterruptibleAncestor instead.
func (s *Scope) Interrupt(reason error) bool {
	if !s.interrupt {
		return false
	}
	if reason == nil {
		reason = errInterrupted
	}
	s.interruptD.Complete(reason)
	return true
}

// InterruptRequested reports whether this Scope (not an ancestor) has had
// Interrupt called on it, returning the reason if so.
func (s *Scope) InterruptRequested() (error, bool) {
	if !s.interrupt {
		return nil, false
	}
	return s.interruptD.TryGet()
}

// FindInterruptibleAncestor walks from s toward the root, returning the
// nearest Scope (possibly s itself) that is an interruption boundary. It
// returns nil if no ancestor is interruptible, grounded on uber-go-dig's
// getScopesFromRoot ancestor walk.
func (s *Scope) FindInterruptibleAncestor() *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.interrupt {
			return cur
		}
	}
	return nil
}

// FindSelfOrAncestor returns s, or the nearest ancestor of s, whose Token
// equals tok. It returns nil if no such scope exists on the path to the
// root.
func (s *Scope) FindSelfOrAncestor(tok Token) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.id.Equal(tok) {
			return cur
		}
	}
	return nil
}

// FindSelfOrChild returns s, or the nearest descendant of s, whose Token
// equals tok, searching depth-first. It returns nil if no such scope
// exists in the subtree rooted at s.
func (s *Scope) FindSelfOrChild(tok Token) *Scope {
	if s.id.Equal(tok) {
		return s
	}
	s.mu.Lock()
	children := seqToSlice(s.children)
	s.mu.Unlock()
	for _, c := range children {
		if found := c.FindSelfOrChild(tok); found != nil {
			return found
		}
	}
	return nil
}

// FindStepScope locates the scope a Step instruction should resume in: the
// scope identified by tok if it is s or an ancestor of s, otherwise the
// scope with that Token found by searching the whole tree from s's root.
// This mirrors fs2's
// "findStepScope", which must work across both directions because a Step
// can resume a Pull that was opened in a sibling branch after a scope
// merge.
func (s *Scope) FindStepScope(tok Token) (*Scope, error) {
	if found := s.FindSelfOrAncestor(tok); found != nil {
		return found, nil
	}
	root := s
	for root.parent != nil {
		root = root.parent
	}
	if found := root.FindSelfOrChild(tok); found != nil {
		return found, nil
	}
	return nil, ErrScopeLookupFailure
}
