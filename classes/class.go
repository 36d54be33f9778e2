// Package classes implements the class finalizer and type system: resolving
// and finalizing classes, interfaces, and parameterized types, and deciding
// subtype/assignability questions between them.
package classes

import (
	"sync"

	"github.com/coreruntime/vmcore/symbols"
)

// State tracks where a Class sits in its Allocated -> PreFinalized ->
// Finalized lifecycle.
type State byte

const (
	Allocated State = iota
	BeingFinalized
	PreFinalized
	Finalized
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "Allocated"
	case BeingFinalized:
		return "BeingFinalized"
	case PreFinalized:
		return "PreFinalized"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// InstanceKind is the closed set of physical object shapes a class can
// describe; it drives visitor dispatch and size computation in the heap.
type InstanceKind byte

const (
	KindInstance InstanceKind = iota
	KindArray
	KindTypeArray
	KindString
	KindClosure
	KindContext
	KindContextScope
	KindCode
	KindInstructions
	KindPcDescriptors
	KindExceptionHandlers
	KindTokenStream
	KindBigInt
	KindRegexData
	KindClass // the metaclass: a Class describing classes themselves
)

// Class is the descriptor every heap object's header points to. A subset of
// fields only make sense once the class reaches Finalized (NextFieldOffset,
// InstanceSize, TypeArgumentsFieldOffset); reading them earlier is a bug in
// the caller.
type Class struct {
	mu sync.RWMutex

	Name   *symbols.Symbol
	Script string // originating script/library URL, informational

	library Resolver // library used for name resolution during Resolve/Finalize

	SuperclassName *symbols.Symbol // unresolved, only valid pre-Resolve
	Superclass     *Class          // resolved during the Resolve wave
	SuperType      Type            // the possibly-parameterized super type

	Interfaces     []*symbols.Symbol // unresolved interface names
	InterfaceTypes []Type            // resolved interface types, post-Resolve

	// IsInterface classes carry a default/factory class used by `new` on the
	// interface; it plays the factory's superclass role during finalization.
	IsInterface  bool
	FactoryName  *symbols.Symbol
	FactoryClass *Class
	FactoryType  Type

	TypeParameterNames []string
	TypeParameterUpperBounds []Type // parallel to TypeParameterNames

	Fields    []*Field
	Functions []*Function
	Constants map[string]interface{}

	AllocationStub interface{} // opaque stub reference, filled by a code generator

	state State
	IsConst bool

	InstanceKindTag InstanceKind
	InstanceSize    int // >0 iff fixed layout
	NextFieldOffset int

	// TypeArgumentsFieldOffset is the byte/slot offset of the type-arguments
	// field within instances of this class, or -1 when the class carries no
	// type arguments.
	TypeArgumentsFieldOffset int

	// functionCache is the per-class method lookup cache described in §4.5,
	// kept as a linearly scanned slice of (name, arity) entries rather than a
	// hashed table. It is advisory: a miss falls back to WalkForMethod.
	functionCache []funcCacheEntry
}

const noTypeArgumentsOffset = -1

type funcCacheEntry struct {
	name       string
	numArgs    int
	numNamed   int
	fn         *Function
}

// Resolver is the minimal library contract the finalizer needs: look a name
// up in the owning library's dictionary.
type Resolver interface {
	LookupLocalClass(name string) (*symbols.Entry, bool)
	LookupClass(name string) (*symbols.Entry, bool)
}

// NewClass allocates a class descriptor in state Allocated. It still needs
// to be resolved and finalized before any of the Finalized-only fields are
// meaningful.
func NewClass(name *symbols.Symbol, library Resolver) *Class {
	return &Class{
		Name:                     name,
		library:                  library,
		Constants:                make(map[string]interface{}),
		TypeArgumentsFieldOffset: noTypeArgumentsOffset,
		state:                    Allocated,
	}
}

// State returns the class's current lifecycle state.
func (c *Class) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Class) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// IsFinalized reports whether this class has completed finalization.
func (c *Class) IsFinalized() bool { return c.State() == Finalized }

// NumTypeParameters is the number of type parameters declared directly on
// this class (not counting ancestors).
func (c *Class) NumTypeParameters() int { return len(c.TypeParameterNames) }

// NumTypeArguments is the sum of type parameters across the superclass
// chain: this class's own parameters occupy the tail of that vector
// (invariant #2 in the specification).
func (c *Class) NumTypeArguments() int {
	c.mu.RLock()
	super := c.Superclass
	own := len(c.TypeParameterNames)
	c.mu.RUnlock()
	if super == nil {
		return own
	}
	return super.NumTypeArguments() + own
}

// TypeParameterOffset is the slot at which this class's own parameters begin
// within a full type-argument vector for this class.
func (c *Class) TypeParameterOffset() int {
	return c.NumTypeArguments() - c.NumTypeParameters()
}

// Field describes one instance or static field.
type Field struct {
	Name            *symbols.Symbol
	Owner           *Class
	Type            Type
	IsStatic        bool
	IsFinal         bool
	HasInitializer  bool
	Offset          int // valid once Owner is Finalized, for instance fields
	StaticSlot      int // valid once Owner is Finalized, for static fields
}

// FunctionKind is the closed set of member kinds a Function can represent.
type FunctionKind byte

const (
	KindFunction FunctionKind = iota
	KindClosureFn
	KindSignature
	KindConstructor
	KindImplicitGetter
	KindImplicitSetter
	KindConstImplicitGetter
	KindAbstract
	KindGetter
	KindSetter
)

// Function describes a method, constructor, getter/setter, or signature.
type Function struct {
	Name  *symbols.Symbol
	Owner *Class
	Kind  FunctionKind

	IsStatic      bool
	IsConst       bool
	IsOptimizable bool

	ResultType     Type
	ParameterTypes []Type
	ParameterNames []*symbols.Symbol // only the named-parameter tail carries names

	NumFixed    int
	NumOptional int

	TokenIndex int

	InvocationCounter    int64
	DeoptimizationCounter int64

	// Code/UnoptimizedCode are filled in by the C4/C5 layers once compiled;
	// declared here (not there) because subtype/override checks need a
	// function's signature independent of whether it has been compiled yet.
	Code           CodeHandle
	UnoptimizedCode CodeHandle

	ParentFunction          *Function // for closures
	SignatureClass          *Class    // for signature-kind functions
	ImplicitClosureFunction *Function
	ContextScope            interface{}
	ClosureAllocationStub   interface{}
}

// CodeHandle is satisfied by code.Code; kept as an interface here so classes
// does not need to import the code package.
type CodeHandle interface {
	EntryPoint() uintptr
	IsOptimized() bool
}

const functionCacheGrowth = 4

// CacheLookup scans this class's advisory method cache (§4.5: "function
// cache per class"). A miss here is not conclusive; the caller must fall
// back to WalkForMethod.
func (c *Class) CacheLookup(name string, numArgs, numNamed int) (*Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.functionCache {
		if e.name == name && e.numArgs == numArgs && e.numNamed == numNamed {
			return e.fn, true
		}
	}
	return nil, false
}

// CacheStore appends a resolved (name, arity) -> function mapping to this
// class's cache, growing the backing slice by a fixed increment.
func (c *Class) CacheStore(name string, numArgs, numNamed int, fn *Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.functionCache {
		if e.name == name && e.numArgs == numArgs && e.numNamed == numNamed {
			return
		}
	}
	if len(c.functionCache) == cap(c.functionCache) {
		grown := make([]funcCacheEntry, len(c.functionCache), len(c.functionCache)+functionCacheGrowth)
		copy(grown, c.functionCache)
		c.functionCache = grown
	}
	c.functionCache = append(c.functionCache, funcCacheEntry{name: name, numArgs: numArgs, numNamed: numNamed, fn: fn})
}

// LookupFunction scans this class's own function list only (no ancestors).
func (c *Class) LookupFunction(name string) (*Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.Functions {
		if fn.Name.Text() == name {
			return fn, true
		}
	}
	return nil, false
}

// WalkForMethod resolves name on c, then on each ancestor in turn. This is
// the fallback path a function-cache miss takes.
func (c *Class) WalkForMethod(name string) (*Function, bool) {
	for cur := c; cur != nil; cur = cur.Superclass {
		if fn, ok := cur.LookupFunction(name); ok {
			return fn, true
		}
	}
	return nil, false
}
