// Package code implements the compiled-code artifacts: Instructions,
// PcDescriptors, ExceptionHandlers, and the Code descriptor that ties them
// together and back to the function that owns them.
package code

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
)

// Instructions is the executable-space allocation backing a Code object:
// the assembled bytes plus, parallel to PointerOffsets on the owning Code,
// the decoded heap references embedded at those offsets.
type Instructions struct {
	obj              *heap.HeapObject
	Bytes            []byte
	EmbeddedPointers []heap.Reference
}

// EntryPoint is the address generated code jumps to. Real machine code
// would expose this as the address of the first instruction byte; since
// this core does not generate or execute real machine code, the same
// address-of-first-byte idiom is used purely as a stable, comparable
// identity for IC-stub bookkeeping.
func (i *Instructions) EntryPoint() uintptr {
	if len(i.Bytes) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&i.Bytes[0]))
}

// PcDescriptorKind is the closed set of reasons a pc gets a descriptor.
type PcDescriptorKind byte

const (
	Deopt PcDescriptorKind = iota
	PatchCode
	IcCall
	Other
)

// PcDescriptor associates one pc inside Instructions with a kind, the AST
// node id needed for deopt matching, the originating token index, and the
// try-block index active at that pc.
type PcDescriptor struct {
	PC         uintptr
	Kind       PcDescriptorKind
	NodeID     int64
	TokenIndex int
	TryIndex   int
}

// PcDescriptors is a small, linearly-scanned table: per-frame tables are
// small enough that a linear scan is the spec's own recommended strategy.
type PcDescriptors []PcDescriptor

// GetTokenIndexOfPC returns the token index recorded at pc, or -1.
func (d PcDescriptors) GetTokenIndexOfPC(pc uintptr) int {
	for _, desc := range d {
		if desc.PC == pc {
			return desc.TokenIndex
		}
	}
	return -1
}

// GetDeoptPcAtNodeId scans for the first Deopt-kind descriptor matching
// nodeID and returns its pc, or ok=false if none exists.
func (d PcDescriptors) GetDeoptPcAtNodeId(nodeID int64) (uintptr, bool) {
	for _, desc := range d {
		if desc.Kind == Deopt && desc.NodeID == nodeID {
			return desc.PC, true
		}
	}
	return 0, false
}

// GetPatchCodePc returns the first PatchCode-kind descriptor's pc.
func (d PcDescriptors) GetPatchCodePc() (uintptr, bool) {
	for _, desc := range d {
		if desc.Kind == PatchCode {
			return desc.PC, true
		}
	}
	return 0, false
}

// ExceptionHandler maps one try-block to the pc its handler begins at.
type ExceptionHandler struct {
	TryIndex  int
	HandlerPC uintptr
}

// ExceptionHandlers is append-only; the unwinder (external to this core)
// consults it to find a handler for an active try-block.
type ExceptionHandlers []ExceptionHandler

// Append adds a handler entry.
func (h *ExceptionHandlers) Append(tryIndex int, handlerPC uintptr) {
	*h = append(*h, ExceptionHandler{TryIndex: tryIndex, HandlerPC: handlerPC})
}

// Lookup returns the first handler registered for tryIndex.
func (h ExceptionHandlers) Lookup(tryIndex int) (uintptr, bool) {
	for _, e := range h {
		if e.TryIndex == tryIndex {
			return e.HandlerPC, true
		}
	}
	return 0, false
}

// ICCacheEntry is one (receiver class, target) pair inside an installed
// inline-cache stub.
type ICCacheEntry struct {
	ReceiverClass *classes.Class
	Target        *Code
}

// ICStub is the short "cmp class; jump target" sequence installed at one
// call site, keyed by a call-site identifier the compiler assigned.
type ICStub struct {
	CallSiteID uint64
	Entries    []ICCacheEntry
}

// Code is the descriptor a compiled function's Code/UnoptimizedCode field
// points to: instructions plus the pc-descriptor and exception-handler
// tables, the per-call-site IC-stub table this code body installed, and a
// back-pointer to the function it implements.
type Code struct {
	mu sync.RWMutex

	Instructions      *Instructions
	PointerOffsets    []int
	PcDescriptorTable PcDescriptors
	Handlers          ExceptionHandlers
	Function          *classes.Function
	ICStubs           []*ICStub
	IsOptimizedFlag   bool
}

// EntryPoint satisfies classes.CodeHandle.
func (c *Code) EntryPoint() uintptr {
	if c == nil || c.Instructions == nil {
		return 0
	}
	return c.Instructions.EntryPoint()
}

// IsOptimized satisfies classes.CodeHandle.
func (c *Code) IsOptimized() bool { return c.IsOptimizedFlag }

// FindICStub returns the IC stub installed at callSiteID, if any.
func (c *Code) FindICStub(callSiteID uint64) (*ICStub, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.ICStubs {
		if s.CallSiteID == callSiteID {
			return s, true
		}
	}
	return nil, false
}

// InstallICStub records a newly built or widened stub, replacing any
// previous stub for the same call site.
func (c *Code) InstallICStub(stub *ICStub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.ICStubs {
		if s.CallSiteID == stub.CallSiteID {
			c.ICStubs[i] = stub
			return
		}
	}
	c.ICStubs = append(c.ICStubs, stub)
}

// VisitPointers hands the embedded references inside this code's
// Instructions to visitor, the Code-specific half of the heap's visitor
// dispatch described in §4.2 ("for Code, the visitor additionally reads
// pointer_offsets[] ...").
func (c *Code) VisitPointers(visitor heap.ObjectPointerVisitor) {
	if c.Instructions == nil || len(c.Instructions.EmbeddedPointers) == 0 {
		return
	}
	refs := c.Instructions.EmbeddedPointers
	visitor.VisitPointers(nil, refs[:1], refs[len(refs)-1:])
}

// HandleResolver maps a pointer_offsets[i] position to the heap reference a
// handle at that position in the assembled bytes currently points to; the
// embedder/compiler front-end that assembled the bytes supplies this.
type HandleResolver func(offset int) (heap.Reference, error)

// FinalizeCode implements Code::FinalizeCode from §4.4:
//  1. allocate an Instructions object in executable space with the exact
//     byte count;
//  2. copy assembled bytes in, resolving each pointer_offsets[i] handle
//     address to the raw object reference it points to;
//  3. allocate the Code descriptor pointing at Instructions (Instructions
//     carries no back-pointer to its Code) and attach it to fn;
//  4. symbolic debug sections are external to this core and are skipped.
func FinalizeCode(h *heap.Heap, fn *classes.Function, optimized bool, assembled []byte, pointerOffsets []int, pcDescriptors PcDescriptors, handlers ExceptionHandlers, resolve HandleResolver) (*Code, error) {
	h.SetExecutableWritable(true)
	defer h.SetExecutableWritable(false)

	obj, err := h.Allocate(nil, classes.KindInstructions, heap.ExecutableSpace, 0, len(assembled))
	if err != nil {
		return nil, fmt.Errorf("code: allocating instructions: %w", err)
	}
	copy(obj.Payload, assembled)

	instr := &Instructions{obj: obj, Bytes: obj.Payload}
	if len(pointerOffsets) > 0 {
		instr.EmbeddedPointers = make([]heap.Reference, len(pointerOffsets))
		for i, off := range pointerOffsets {
			ref, err := resolve(off)
			if err != nil {
				return nil, fmt.Errorf("code: resolving embedded pointer at offset %d: %w", off, err)
			}
			instr.EmbeddedPointers[i] = ref
		}
	}

	c := &Code{
		Instructions:      instr,
		PointerOffsets:    pointerOffsets,
		PcDescriptorTable: pcDescriptors,
		Handlers:          handlers,
		Function:          fn,
		IsOptimizedFlag:   optimized,
	}
	if fn != nil {
		if optimized {
			fn.Code = c
		} else {
			fn.Code = c
			fn.UnoptimizedCode = c
		}
	}
	return c, nil
}
