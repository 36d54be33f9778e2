package isolate

import "golang.org/x/sys/unix"

const initialSegmentSize = 4 * 1024 // one typical page, doubled thereafter

func defaultSegmentSize() int {
	if pageSize := unix.Getpagesize(); pageSize > 0 {
		return pageSize
	}
	return initialSegmentSize
}

// segment is one contiguous slab inside a Zone; large allocations (bigger
// than a segment) get a dedicated segment sized exactly to the request.
type segment struct {
	buf  []byte
	used int
}

func newSegment(size int) *segment {
	return &segment{buf: make([]byte, size)}
}

func (s *segment) allocate(n int) ([]byte, bool) {
	if s.used+n > len(s.buf) {
		return nil, false
	}
	b := s.buf[s.used : s.used+n]
	s.used += n
	return b, true
}

// Zone is a monotonically growing arena: everything allocated from it is
// released together when the zone is popped off the isolate's zone stack.
// Growth doubles the segment size each time the current segment runs out,
// matching §4.1's "segments doubling in capacity" growth strategy.
type Zone struct {
	segmentSize int
	segments    []*segment
}

// NewZone creates an empty zone sized to one platform page.
func NewZone() *Zone {
	return &Zone{segmentSize: defaultSegmentSize()}
}

// Allocate returns n zeroed bytes from the zone, growing it if needed.
func (z *Zone) Allocate(n int) []byte {
	if n > z.segmentSize {
		// large allocation: its own dedicated segment, not folded into the
		// doubling progression.
		s := newSegment(n)
		b, _ := s.allocate(n)
		z.segments = append(z.segments, s)
		return b
	}
	if len(z.segments) > 0 {
		if b, ok := z.segments[len(z.segments)-1].allocate(n); ok {
			return b
		}
		z.segmentSize *= 2
	}
	s := newSegment(z.segmentSize)
	b, _ := s.allocate(n)
	z.segments = append(z.segments, s)
	return b
}

// Reallocate returns old truncated to newSize when newSize <= oldSize;
// otherwise it allocates fresh space and copies the old contents over. It
// never grows an existing allocation in place.
func (z *Zone) Reallocate(old []byte, oldSize, newSize int) []byte {
	if newSize <= oldSize {
		return old[:newSize]
	}
	fresh := z.Allocate(newSize)
	copy(fresh, old[:oldSize])
	return fresh
}

// ZoneStack is the isolate's LIFO stack of active zones: entering a scope
// pushes a new zone, exiting pops and discards it (and, with it, every byte
// allocated from it).
type ZoneStack struct {
	stack []*Zone
}

// Push enters a new zone scope, returning the zone allocations should use
// until the matching Pop.
func (zs *ZoneStack) Push() *Zone {
	z := NewZone()
	zs.stack = append(zs.stack, z)
	return z
}

// Current returns the innermost active zone, or nil if none is active.
func (zs *ZoneStack) Current() *Zone {
	if len(zs.stack) == 0 {
		return nil
	}
	return zs.stack[len(zs.stack)-1]
}

// Pop exits the innermost zone scope, releasing every allocation made from
// it (by simply dropping the last reference; Go's own GC reclaims it).
func (zs *ZoneStack) Pop() {
	if len(zs.stack) == 0 {
		return
	}
	zs.stack = zs.stack[:len(zs.stack)-1]
}

// Depth reports how many zone scopes are currently nested.
func (zs *ZoneStack) Depth() int { return len(zs.stack) }
