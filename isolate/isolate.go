// Package isolate implements the per-worker execution context: heap
// ownership, zone/handle scopes, the stack-limit check, the sticky-error
// slot that replaces the source's setjmp/longjmp, and cross-isolate message
// ports.
package isolate

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/symbols"
)

// Message is one cross-isolate port delivery: an immutable payload, since
// isolates share no mutable objects (§5).
type Message struct {
	Port    uint64
	Payload interface{}
}

// Isolate owns one execution worker's entire mutable state.
type Isolate struct {
	ID uuid.UUID

	mu sync.Mutex

	heap     *heap.Heap
	symbols  *symbols.Table
	libraries *symbols.Registry

	zones        ZoneStack
	handleScopes []*HandleScope
	persistentHandles []*Handle

	finalizer        *classes.Finalizer
	pendingClasses   []*classes.Class
	bootstrapClasses []*classes.Class
	store            *ObjectStore

	// StickyError holds the most recent unrecovered finalization/compilation
	// error message, per §7's propagation policy. It is set by FinalizeAll
	// when FinalizePendingClasses fails and is never silently cleared.
	StickyError string

	stackLimit            uintptr
	stackLimitOnOverflow  uintptr
	savedStackLimit       uintptr
	overflowActive        bool

	portsMu  sync.Mutex
	ports    map[uint64]chan Message
	nextPort uint64
	activePortCount int
}

var (
	currentMu sync.Mutex
	current   *Isolate
)

// New creates an isolate with an empty heap, symbol table, and library
// registry. It does not yet install bootstrap classes or singletons; call
// Bootstrap for that.
func New() *Isolate {
	return &Isolate{
		ID:        uuid.New(),
		heap:      heap.NewHeap(),
		symbols:   symbols.NewTable(),
		libraries: symbols.NewRegistry(),
		finalizer: classes.NewFinalizer(),
		ports:     make(map[uint64]chan Message),
	}
}

// Heap returns the isolate's object store.
func (iso *Isolate) Heap() *heap.Heap { return iso.heap }

// Symbols returns the isolate's interned-string table.
func (iso *Isolate) Symbols() *symbols.Table { return iso.symbols }

// Libraries returns the isolate's library registry.
func (iso *Isolate) Libraries() *symbols.Registry { return iso.libraries }

// Zones returns the isolate's zone stack.
func (iso *Isolate) Zones() *ZoneStack { return &iso.zones }

// SetCurrent installs iso as the current isolate for this worker. Entering
// another isolate first requires exiting whatever is current, matching
// §5's single-current-isolate invariant.
func SetCurrent(iso *Isolate) error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil && current != iso {
		return fmt.Errorf("isolate: %s is still current; exit it before entering %s", current.ID, iso.ID)
	}
	current = iso
	return nil
}

// ExitCurrent clears the current-isolate slot.
func ExitCurrent(iso *Isolate) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == iso {
		current = nil
	}
}

// Current returns the isolate bound to this worker, or nil.
func Current() *Isolate {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// EnqueuePendingClass adds class to the pending-classes queue, to be picked
// up by the next FinalizeAll.
func (iso *Isolate) EnqueuePendingClass(c *classes.Class) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	iso.pendingClasses = append(iso.pendingClasses, c)
}

// FinalizeAll drains the pending-classes queue through the Resolve and
// Finalize waves (§4.3). On failure it records the message in StickyError
// and leaves the queue exactly where the failure left it, mirroring the
// long-jump-to-finalizer-boundary recovery policy in §7.
func (iso *Isolate) FinalizeAll() error {
	iso.mu.Lock()
	pending := iso.pendingClasses
	iso.mu.Unlock()

	if err := iso.finalizer.FinalizePendingClasses(pending); err != nil {
		iso.StickyError = err.Error()
		return err
	}

	iso.mu.Lock()
	iso.pendingClasses = nil
	iso.mu.Unlock()
	return nil
}

// SetStackLimit installs the live stack-limit word checked on function
// entry.
func (iso *Isolate) SetStackLimit(limit uintptr) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	iso.stackLimit = limit
}

// StackLimit returns the word compiled code compares its current stack
// pointer against.
func (iso *Isolate) StackLimit() uintptr {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.overflowActive {
		return iso.stackLimitOnOverflow
	}
	return iso.stackLimit
}

// EnterStackOverflow lowers the stack limit to reserve headroom for
// unwinding, per §4.1's overflow handling.
func (iso *Isolate) EnterStackOverflow(reserve uintptr) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.overflowActive {
		return
	}
	iso.savedStackLimit = iso.stackLimit
	iso.stackLimitOnOverflow = 0
	if iso.stackLimit > reserve {
		iso.stackLimitOnOverflow = iso.stackLimit - reserve
	}
	iso.overflowActive = true
}

// ExitStackOverflow restores the stack limit that was active before the
// overflow, once unwinding has completed.
func (iso *Isolate) ExitStackOverflow() {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if !iso.overflowActive {
		return
	}
	iso.stackLimit = iso.savedStackLimit
	iso.overflowActive = false
}
