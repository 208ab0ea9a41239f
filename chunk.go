package streams

import (
	"iter"
	"math/bits"
)

// Chunk is an immutable, indexable sequence of output values. It is the unit
// of batching that a Pull program produces and a Stream consumes: a single
// Output instruction carries zero or more elements as one Chunk rather than
// one instruction per element, which is what makes pull-based streaming
// competitive with a hand-rolled loop.
//
// A Chunk is represented as a small rope: a leaf wraps a slice directly, and
// Concat joins two chunks in O(1) by allocating a branch node that caches the
// combined size. At, which indexes a single element, descends the tree in
// O(depth); depth stays O(log n) for chunks built by repeated balanced
// concatenation, which is the pattern Stream's internal buffering produces.
type Chunk[O any] struct {
	leaf        []O
	left, right *Chunk[O]
	size        int
	depth       int
}

// EmptyChunk returns the Chunk with no elements.
func EmptyChunk[O any]() Chunk[O] {
	return Chunk[O]{}
}

// ChunkOf wraps a single value as a one-element Chunk.
func ChunkOf[O any](v O) Chunk[O] {
	return Chunk[O]{leaf: []O{v}, size: 1, depth: 1}
}

// NewChunk wraps an existing slice as a Chunk without copying it. Callers
// must not mutate the slice afterward.
func NewChunk[O any](vs []O) Chunk[O] {
	d := 0
	if len(vs) > 0 {
		d = 1
	}
	return Chunk[O]{leaf: vs, size: len(vs), depth: d}
}

// Size returns the number of elements in the Chunk.
func (c Chunk[O]) Size() int {
	return c.size
}

// IsEmpty reports whether the Chunk has no elements.
func (c Chunk[O]) IsEmpty() bool {
	return c.size == 0
}

// At returns the element at index i. It panics if i is out of range, the
// same contract slice indexing has.
func (c Chunk[O]) At(i int) O {
	if i < 0 || i >= c.size {
		panic("streams: Chunk index out of range")
	}
	if c.leaf != nil {
		return c.leaf[i]
	}
	if i < c.left.size {
		return c.left.At(i)
	}
	return c.right.At(i - c.left.size)
}

// concatThreshold bounds how large a Concat result may grow before it is
// flattened into a single contiguous leaf rather than a new branch node.
// Output/flatMapPull repeatedly append single-element chunks onto a
// stream's running result; below this threshold Concat copies both sides
// into one leaf so At stays O(1) against the common small-chunk case.
const concatThreshold = 64

// maxDepthFor bounds the depth a Concat result may reach before Concat
// rebalances by flattening, given the total element count it would hold.
// Without this, a chunk built from repeated single-element Concat calls
// past concatThreshold would keep stacking one branch node per append —
// the exact linked-list degeneration Concat is meant to avoid — because
// concatThreshold alone only protects the chunk while it is still small.
// Rebalancing whenever depth outgrows twice the element count's bit length
// plus two keeps At at O(log n) for any chunk, however it was built.
func maxDepthFor(size int) int {
	return 2*bits.Len(uint(size)) + 2
}

// Concat joins two chunks. The result is flattened into a single leaf
// immediately when it's still small (below concatThreshold) or when
// keeping it as a branch node would let the rope's depth outgrow
// maxDepthFor its size; otherwise Concat returns an O(1) branch node,
// deferring flattening to iteration/ToSlice.
func (c Chunk[O]) Concat(other Chunk[O]) Chunk[O] {
	if c.size == 0 {
		return other
	}
	if other.size == 0 {
		return c
	}
	size := c.size + other.size
	depth := 1 + max(c.depth, other.depth)
	if size <= concatThreshold || depth > maxDepthFor(size) {
		out := make([]O, 0, size)
		c.appendTo(&out)
		other.appendTo(&out)
		return NewChunk(out)
	}
	return Chunk[O]{left: &c, right: &other, size: size, depth: depth}
}

// ToSlice flattens the Chunk into a freshly allocated slice in element
// order.
func (c Chunk[O]) ToSlice() []O {
	out := make([]O, 0, c.size)
	c.appendTo(&out)
	return out
}

func (c Chunk[O]) appendTo(out *[]O) {
	if c.size == 0 {
		return
	}
	if c.leaf != nil {
		*out = append(*out, c.leaf...)
		return
	}
	c.left.appendTo(out)
	c.right.appendTo(out)
}

// Seq returns an iterator over the Chunk's elements in order, for use with
// range-over-func.
func (c Chunk[O]) Seq() iter.Seq[O] {
	return func(yield func(O) bool) {
		c.each(yield)
	}
}

func (c Chunk[O]) each(yield func(O) bool) bool {
	if c.size == 0 {
		return true
	}
	if c.leaf != nil {
		for _, v := range c.leaf {
			if !yield(v) {
				return false
			}
		}
		return true
	}
	if !c.left.each(yield) {
		return false
	}
	return c.right.each(yield)
}

// ChunkMap transforms every element of a Chunk, returning a new Chunk of the
// mapped type.
func ChunkMap[A, B any](c Chunk[A], fn func(A) B) Chunk[B] {
	out := make([]B, 0, c.size)
	for v := range c.Seq() {
		out = append(out, fn(v))
	}
	return NewChunk(out)
}

// ChunkFilter returns a new Chunk containing only the elements satisfying
// pred.
func ChunkFilter[O any](c Chunk[O], pred func(O) bool) Chunk[O] {
	out := make([]O, 0, c.size)
	for v := range c.Seq() {
		if pred(v) {
			out = append(out, v)
		}
	}
	return NewChunk(out)
}

// Take returns the first n elements of the Chunk, flattening in the
// process. If n >= Size(), the whole chunk is returned.
func (c Chunk[O]) Take(n int) Chunk[O] {
	if n >= c.size {
		return c
	}
	if n <= 0 {
		return EmptyChunk[O]()
	}
	return NewChunk(c.ToSlice()[:n])
}

// Drop returns the Chunk with the first n elements removed.
func (c Chunk[O]) Drop(n int) Chunk[O] {
	if n <= 0 {
		return c
	}
	if n >= c.size {
		return EmptyChunk[O]()
	}
	return NewChunk(c.ToSlice()[n:])
}
