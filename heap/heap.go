// Package heap implements the per-isolate object store: tagged references,
// heap-object headers, and space-scoped bump allocation.
package heap

import (
	"fmt"
	"sync"

	"github.com/coreruntime/vmcore/classes"
)

// Space identifies which generation/region a heap allocation lands in.
type Space byte

const (
	NewSpace Space = iota
	OldSpace
	ExecutableSpace
)

func (s Space) String() string {
	switch s {
	case NewSpace:
		return "new"
	case OldSpace:
		return "old"
	case ExecutableSpace:
		return "executable"
	default:
		return "unknown"
	}
}

// Reference is a tagged machine-word value: either an immediate small
// integer or a pointer to a heap object. The low-bit discriminant described
// in the specification is modeled here as a boolean tag rather than an
// actual pointer bit, since Go does not let us steal a bit from a real
// pointer.
type Reference struct {
	isPointer bool
	small     int64
	obj       *HeapObject
}

// smallIntBits mirrors "one bit less than the native word" on a 64-bit word.
const smallIntBits = 62
const smallIntMax = int64(1)<<smallIntBits - 1
const smallIntMin = -int64(1) << smallIntBits

// NewSmallInt returns a tagged immediate reference. Values outside the
// small-integer range are the caller's responsibility to box (the
// specification hands that off to a medium/big-integer representation,
// which is out of this core's scope).
func NewSmallInt(v int64) Reference {
	return Reference{small: v}
}

// NewPointer tags a heap-object pointer as a reference.
func NewPointer(o *HeapObject) Reference {
	return Reference{isPointer: true, obj: o}
}

// Null is the canonical null reference: a pointer reference to no object.
var Null = Reference{isPointer: true, obj: nil}

// IsSmallInt reports whether r holds an immediate integer.
func (r Reference) IsSmallInt() bool { return !r.isPointer }

// IsNull reports whether r is the null reference.
func (r Reference) IsNull() bool { return r.isPointer && r.obj == nil }

// SmallInt returns the immediate value; valid only when IsSmallInt is true.
func (r Reference) SmallInt() int64 { return r.small }

// InSmallIntRange reports whether v fits the tagged small-integer range
// without promotion to a boxed integer.
func InSmallIntRange(v int64) bool { return v >= smallIntMin && v <= smallIntMax }

// Object returns the pointed-to heap object, or nil for a null/small-int
// reference.
func (r Reference) Object() *HeapObject {
	if !r.isPointer {
		return nil
	}
	return r.obj
}

// HeapObject is the uniform header every heap allocation carries: a pointer
// to its class descriptor plus the fields/payload the class's instance kind
// prescribes.
type HeapObject struct {
	Class *classes.Class
	Kind  classes.InstanceKind
	Space Space

	// Fields holds every reference-typed slot an instance kind declares
	// (instance fields for KindInstance, elements for KindArray/KindTypeArray,
	// context slots for KindContext, and so on).
	Fields []Reference

	// Payload holds the raw byte backing for variable-size non-reference
	// kinds: string code units, token streams, and Instructions bytes.
	Payload []byte

	id uint64 // allocation-order identity, used as this core's notion of "address"
}

// Heap is an isolate's object store: three logical spaces, each a
// monotonically growing bump-allocation region, plus the no-GC/no-handle
// scope counters the specification requires in debug builds.
type Heap struct {
	mu sync.Mutex

	nextID uint64
	used   [3]int64 // bytes attributed to each Space, for size accounting only

	executableWritable bool
	noGCDepth           int
	noHandleDepth        int
}

// NewHeap creates an empty heap with its executable space initially
// write-protected (matching "writes to it are permitted only during
// finalization of a code artifact").
func NewHeap() *Heap {
	return &Heap{}
}

// Allocate returns a zero-initialized object of the given instance kind,
// with numFields reference slots and a payloadLen-byte payload, tagged into
// the requested space. The heap accounts numFields*8+payloadLen bytes to
// that space for its own bookkeeping only (the Go runtime owns the real
// memory backing Fields/Payload).
func (h *Heap) Allocate(class *classes.Class, kind classes.InstanceKind, space Space, numFields, payloadLen int) (*HeapObject, error) {
	if space == ExecutableSpace {
		h.mu.Lock()
		writable := h.executableWritable
		h.mu.Unlock()
		if !writable {
			return nil, fmt.Errorf("heap: executable space is not writable outside code finalization")
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.used[space] += int64(numFields*8 + payloadLen)
	h.mu.Unlock()

	obj := &HeapObject{
		Class: class,
		Kind:  kind,
		Space: space,
		id:    id,
	}
	if numFields > 0 {
		obj.Fields = make([]Reference, numFields)
		for i := range obj.Fields {
			obj.Fields[i] = NewSmallInt(0)
		}
	}
	if payloadLen > 0 {
		obj.Payload = make([]byte, payloadLen)
	}
	return obj, nil
}

// BytesUsed reports the accounting total for a space, mirroring the
// top/end readable addresses generated code inspects for its inline
// bump-allocation fast path.
func (h *Heap) BytesUsed(space Space) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used[space]
}

// SetExecutableWritable toggles whether ExecutableSpace accepts allocations;
// Code.FinalizeCode brackets its work with this.
func (h *Heap) SetExecutableWritable(w bool) {
	h.mu.Lock()
	h.executableWritable = w
	h.mu.Unlock()
}

// ObjectSize returns an object's logical size: the class's fixed
// instance_size when one is declared, otherwise a variable size derived
// from the object's own Fields/Payload length.
func ObjectSize(o *HeapObject) int {
	if o.Class != nil && o.Class.InstanceSize > 0 {
		return o.Class.InstanceSize
	}
	return len(o.Fields)*8 + len(o.Payload)
}

// EnterNoGC/ExitNoGC bracket a span of code that must not observe a moving
// collector; nested calls are allowed, only the outermost exit clears the
// restriction.
func (h *Heap) EnterNoGC() {
	h.mu.Lock()
	h.noGCDepth++
	h.mu.Unlock()
}

func (h *Heap) ExitNoGC() {
	h.mu.Lock()
	if h.noGCDepth > 0 {
		h.noGCDepth--
	}
	h.mu.Unlock()
}

// InNoGCScope reports whether a GC would currently violate a no-GC scope.
func (h *Heap) InNoGCScope() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.noGCDepth > 0
}

// EnterNoHandleScope/ExitNoHandleScope bracket a span where allocating a new
// handle is a bug (e.g. while a generated stub runs with raw references).
func (h *Heap) EnterNoHandleScope() {
	h.mu.Lock()
	h.noHandleDepth++
	h.mu.Unlock()
}

func (h *Heap) ExitNoHandleScope() {
	h.mu.Lock()
	if h.noHandleDepth > 0 {
		h.noHandleDepth--
	}
	h.mu.Unlock()
}

// InNoHandleScope reports whether allocating a handle right now would
// violate an active no-handle scope.
func (h *Heap) InNoHandleScope() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.noHandleDepth > 0
}
