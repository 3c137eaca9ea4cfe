package meshpool

import "sync/atomic"

// FrameContext identifies the frame being rendered. Values written for the
// next frame go to the slot opposite VisibleIndex.
type FrameContext struct {
	VisibleIndex uint32
	Frame        uint64
}

func (fc FrameContext) next() uint32 { return fc.VisibleIndex ^ 1 }

// FrameSwapper owns the visible slot index shared by every Buffered value.
type FrameSwapper struct {
	index atomic.Uint32
	frame atomic.Uint64
}

// Context returns the context of the current frame.
func (s *FrameSwapper) Context() FrameContext {
	return FrameContext{VisibleIndex: s.index.Load(), Frame: s.frame.Load()}
}

// SwapVisibleBuffers publishes everything written during this frame. Call
// once per frame after culling finished and before rendering the next one.
func (s *FrameSwapper) SwapVisibleBuffers() FrameContext {
	s.frame.Add(1)
	s.index.Store(s.index.Load() ^ 1)
	return s.Context()
}

// Buffered is a double-buffered value: Read sees the slot published for the
// frame, Write fills the other one. A value written mid-frame is therefore
// never observed by that frame's readers.
type Buffered[T comparable] struct {
	slots [2]atomic.Pointer[T]
}

// NewBuffered returns a value with both slots set to v.
func NewBuffered[T comparable](v T) *Buffered[T] {
	b := &Buffered[T]{}
	b.slots[0].Store(&v)
	b.slots[1].Store(&v)
	return b
}

// Read returns the value visible in the frame.
func (b *Buffered[T]) Read(fc FrameContext) T {
	if p := b.slots[fc.VisibleIndex&1].Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Write sets the value for the frame after fc.
func (b *Buffered[T]) Write(fc FrameContext, v T) {
	slot := &b.slots[fc.next()&1]
	if p := slot.Load(); p != nil && *p == v {
		return
	}
	slot.Store(&v)
}
