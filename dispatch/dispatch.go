// Package dispatch implements the runtime-call pipeline: the fixed set of
// entries compiled code calls out to through a stub, the canonical argument
// descriptor, the inline-cache protocol, the per-class function-cache
// fallback, and deoptimization. Every entry here corresponds to one runtime
// call compiled code would otherwise have to inline in full.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/isolate"
)

// Dispatcher owns one isolate's runtime-call pipeline: the shared argument
// descriptor table, the hotspot detector driving OptimizeInvokedFunction,
// and the deopt/IC bookkeeping that spans calls.
type Dispatcher struct {
	iso *isolate.Isolate

	descriptors *descriptorTable
	hotspot     *HotspotDetector

	mu           sync.Mutex
	pendingThrow *Exception
	traceDepth   int
}

// New creates a dispatcher bound to iso, with the default optimization
// threshold (§4.5: "a function recompiles once its invocation counter
// crosses a fixed threshold").
func New(iso *isolate.Isolate) *Dispatcher {
	return &Dispatcher{
		iso:         iso,
		descriptors: newDescriptorTable(),
		hotspot:     NewHotspotDetector(defaultOptimizationThreshold),
	}
}

// CanonicalizeDescriptor is the compiler-facing entry for building call-site
// argument descriptors; see ArgumentDescriptor.
func (d *Dispatcher) CanonicalizeDescriptor(totalCount, positionalCount int, named []NamedArgument) *ArgumentDescriptor {
	return d.descriptors.Canonicalize(totalCount, positionalCount, named)
}

// AllocateArray implements the DRT_AllocateArray entry (§4.5): a fixed-kind
// array of length elements, all initialized to null, with typeArgs recorded
// against it (see attachTypeArguments and TypeArgumentsOf).
func (d *Dispatcher) AllocateArray(arrayClass *classes.Class, length int, typeArgs classes.TypeArguments) (*heap.HeapObject, error) {
	if length < 0 {
		return nil, fmt.Errorf("dispatch: AllocateArray: negative length %d", length)
	}
	obj, err := d.iso.Heap().Allocate(arrayClass, classes.KindArray, heap.NewSpace, length, 0)
	if err != nil {
		return nil, fmt.Errorf("dispatch: AllocateArray: %w", err)
	}
	for i := range obj.Fields {
		obj.Fields[i] = heap.Null
	}
	attachTypeArguments(obj, typeArgs)
	return obj, nil
}

// AllocateObject implements DRT_AllocateObject: a fresh instance of class,
// every declared instance field initialized to null (§4.5, §8 scenario:
// "freshly allocated instance has every declared field set to null").
func (d *Dispatcher) AllocateObject(class *classes.Class) (*heap.HeapObject, error) {
	if !class.IsFinalized() {
		return nil, fmt.Errorf("dispatch: AllocateObject: class %s is not finalized", class.Name.Text())
	}
	numFields := instanceFieldSlots(class)
	obj, err := d.iso.Heap().Allocate(class, classes.KindInstance, heap.NewSpace, numFields, 0)
	if err != nil {
		return nil, fmt.Errorf("dispatch: AllocateObject: %w", err)
	}
	for i := range obj.Fields {
		obj.Fields[i] = heap.Null
	}
	return obj, nil
}

// instanceFieldSlots counts reference-typed field slots across a class's own
// declarations; ancestor field slots are the caller's responsibility to
// include via NextFieldOffset bookkeeping during finalization, so here we
// only size this class's contribution plus whatever offset finalization
// already assigned.
func instanceFieldSlots(class *classes.Class) int {
	if class.NextFieldOffset > 0 {
		return class.NextFieldOffset
	}
	n := 0
	for _, f := range class.Fields {
		if !f.IsStatic {
			n++
		}
	}
	return n
}

// AllocateContext implements DRT_AllocateContext: a fixed-size slot vector
// for a closure's captured variables plus a link to its enclosing context.
func (d *Dispatcher) AllocateContext(numVariables int, parent *heap.HeapObject) (*heap.HeapObject, error) {
	obj, err := d.iso.Heap().Allocate(nil, classes.KindContext, heap.NewSpace, numVariables+1, 0)
	if err != nil {
		return nil, fmt.Errorf("dispatch: AllocateContext: %w", err)
	}
	for i := 0; i < numVariables; i++ {
		obj.Fields[i] = heap.Null
	}
	if parent != nil {
		obj.Fields[numVariables] = heap.NewPointer(parent)
	} else {
		obj.Fields[numVariables] = heap.Null
	}
	return obj, nil
}

// AllocateClosure implements DRT_AllocateClosure: a closure object binding a
// function, its signature class, and the captured context.
func (d *Dispatcher) AllocateClosure(closureClass *classes.Class, fn *classes.Function, context *heap.HeapObject) (*heap.HeapObject, error) {
	obj, err := d.iso.Heap().Allocate(closureClass, classes.KindClosure, heap.NewSpace, 2, 0)
	if err != nil {
		return nil, fmt.Errorf("dispatch: AllocateClosure: %w", err)
	}
	obj.Fields[0] = heap.Null // function slot is resolved by identity, not by reference
	if context != nil {
		obj.Fields[1] = heap.NewPointer(context)
	} else {
		obj.Fields[1] = heap.Null
	}
	closureFunctions.store(obj, fn)
	return obj, nil
}

// AllocateStaticImplicitClosure implements DRT_AllocateImplicitClosure for a
// static function: no receiver, so the context carries no captured `this`.
func (d *Dispatcher) AllocateStaticImplicitClosure(closureClass *classes.Class, fn *classes.Function) (*heap.HeapObject, error) {
	return d.AllocateClosure(closureClass, fn, nil)
}

// AllocateImplicitClosure implements DRT_AllocateImplicitClosure for an
// instance method: the context's sole captured variable is the receiver.
func (d *Dispatcher) AllocateImplicitClosure(closureClass *classes.Class, fn *classes.Function, receiver *heap.HeapObject) (*heap.HeapObject, error) {
	ctx, err := d.AllocateContext(1, nil)
	if err != nil {
		return nil, err
	}
	if receiver != nil {
		ctx.Fields[0] = heap.NewPointer(receiver)
	}
	return d.AllocateClosure(closureClass, fn, ctx)
}

// closureFunctions tracks which classes.Function a closure HeapObject was
// allocated for. HeapObject has no room for an opaque function pointer in
// its field vector without growing the object model beyond what the heap
// package declares, so the mapping lives here, keyed by the object's
// identity, exactly as an out-of-band side table would back an unboxed
// field in a tighter memory layout.
var closureFunctions = newClosureFunctionTable()

type closureFunctionTable struct {
	mu    sync.Mutex
	byObj map[*heap.HeapObject]*classes.Function
}

func newClosureFunctionTable() *closureFunctionTable {
	return &closureFunctionTable{byObj: make(map[*heap.HeapObject]*classes.Function)}
}

func (t *closureFunctionTable) store(obj *heap.HeapObject, fn *classes.Function) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byObj[obj] = fn
}

func (t *closureFunctionTable) lookup(obj *heap.HeapObject) (*classes.Function, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn, ok := t.byObj[obj]
	return fn, ok
}

// ClosureFunction returns the function a closure object was allocated
// against.
func ClosureFunction(obj *heap.HeapObject) (*classes.Function, bool) {
	return closureFunctions.lookup(obj)
}

// attachTypeArguments records typeArgs for obj in a side table keyed by the
// object's identity; no field slot of obj is used. A nil typeArgs records
// nothing.
func attachTypeArguments(obj *heap.HeapObject, typeArgs classes.TypeArguments) {
	if typeArgs == nil {
		return
	}
	typeArgumentsTable.store(obj, typeArgs)
}

var typeArgumentsTable = newTypeArgumentsTable()

type typeArgumentsSideTable struct {
	mu    sync.Mutex
	byObj map[*heap.HeapObject]classes.TypeArguments
}

func newTypeArgumentsTable() *typeArgumentsSideTable {
	return &typeArgumentsSideTable{byObj: make(map[*heap.HeapObject]classes.TypeArguments)}
}

func (t *typeArgumentsSideTable) store(obj *heap.HeapObject, args classes.TypeArguments) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byObj[obj] = args
}

// TypeArgumentsOf returns the type-argument vector an array/instance was
// allocated with, if any.
func TypeArgumentsOf(obj *heap.HeapObject) (classes.TypeArguments, bool) {
	typeArgumentsTable.mu.Lock()
	defer typeArgumentsTable.mu.Unlock()
	a, ok := typeArgumentsTable.byObj[obj]
	return a, ok
}

// InstantiateTypeArguments implements DRT_InstantiateTypeArguments: resolve
// uninstantiated against the instantiator vector supplied by the caller's
// own type-arguments field, short-circuiting to the instantiator itself
// when uninstantiated is the trivial identity vector (§4.5's documented
// fast path).
func (d *Dispatcher) InstantiateTypeArguments(uninstantiated classes.TypeArguments, instantiator classes.TypeArguments) classes.TypeArguments {
	if arr, ok := uninstantiated.(*classes.TypeArray); ok && arr.IsUninstantiatedIdentity() {
		return instantiator
	}
	return uninstantiated.InstantiateFrom(instantiator, 0)
}

// Instanceof implements DRT_Instanceof: is obj's runtime type more specific
// than target, given target's own instantiator (the type-arguments vector
// in scope at the check site).
func (d *Dispatcher) Instanceof(obj *heap.HeapObject, target classes.Type, instantiator classes.TypeArguments) bool {
	if obj == nil {
		return false
	}
	resolved := resolveAgainstInstantiator(target, instantiator)
	actual := runtimeTypeOf(obj)
	return classes.IsMoreSpecificThan(actual, resolved)
}

func resolveAgainstInstantiator(t classes.Type, instantiator classes.TypeArguments) classes.Type {
	if instantiator == nil {
		return t
	}
	return &classes.InstantiatedType{Uninstantiated: t, InstantiatorArguments: instantiator}
}

// runtimeTypeOf builds the parameterized type describing obj's exact
// runtime class, including whatever type-argument vector it was allocated
// with.
func runtimeTypeOf(obj *heap.HeapObject) classes.Type {
	pt := &classes.ParameterizedType{Class: obj.Class}
	if args, ok := TypeArgumentsOf(obj); ok {
		pt.Arguments = make([]classes.Type, args.Length())
		for i := range pt.Arguments {
			pt.Arguments[i] = args.At(i)
		}
	}
	return pt
}

// TraceFunctionEntry/TraceFunctionExit implement the DRT_TraceFunctionEntry
// and DRT_TraceFunctionExit hooks (§4.5), a development-mode call trace the
// embedder can subscribe to; this core just tracks nesting depth, since
// formatting/output is an embedder concern.
func (d *Dispatcher) TraceFunctionEntry(fn *classes.Function) {
	d.mu.Lock()
	d.traceDepth++
	d.mu.Unlock()
}

func (d *Dispatcher) TraceFunctionExit(fn *classes.Function) {
	d.mu.Lock()
	if d.traceDepth > 0 {
		d.traceDepth--
	}
	d.mu.Unlock()
}

// StackOverflow implements DRT_StackOverflow: lower the isolate's stack
// limit to reserve unwinding headroom and raise a catchable exception.
func (d *Dispatcher) StackOverflow(reserve uintptr) error {
	d.iso.EnterStackOverflow(reserve)
	return d.Throw(NewException("StackOverflowError", nil))
}
