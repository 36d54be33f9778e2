package classes

import "github.com/coreruntime/vmcore/symbols"

// Finalizer drives FinalizePendingClasses over a queue of classes in
// Allocated state, exactly as described in §4.3: a Resolve wave followed by
// a Finalize wave. CheckBounds toggles whether type-parameter upper bounds
// are enforced during type finalization (the specification's "if type
// checks are enabled" clause).
type Finalizer struct {
	CheckBounds bool
}

// NewFinalizer returns a finalizer with bound checking enabled, the default
// posture for a debug/checked-mode isolate.
func NewFinalizer() *Finalizer {
	return &Finalizer{CheckBounds: true}
}

// FinalizePendingClasses resolves and finalizes every class in pending. On
// the first error it stops and returns that error; no further class in the
// queue is finalized (the caller's isolate latches the message into its
// sticky-error slot and the queue is left exactly as it was at the failure
// point, per the specification's recovery rule).
func (f *Finalizer) FinalizePendingClasses(pending []*Class) error {
	for _, c := range pending {
		if c.State() != Allocated {
			continue
		}
		if err := f.resolveClass(c); err != nil {
			return err
		}
	}
	for _, c := range pending {
		if c.State() == Finalized {
			continue
		}
		if err := f.FinalizeClass(c); err != nil {
			return err
		}
	}
	return nil
}

// resolveClass is the Resolve wave: resolve the superclass type and, for an
// interface, its factory type.
func (f *Finalizer) resolveClass(c *Class) error {
	if c.SuperclassName != nil && c.SuperType == nil {
		c.SuperType = &ParameterizedType{ClassName: c.SuperclassName}
	}
	if c.SuperType != nil {
		resolved, err := ResolveType(c.SuperType, c)
		if err != nil {
			return newError(ErrUnresolvedName, c, "resolving superclass: %v", err)
		}
		c.SuperType = resolved
		if pt, ok := resolved.(*ParameterizedType); ok {
			c.Superclass = pt.Class
		}
	}

	if c.IsInterface && c.FactoryName != nil && c.FactoryType == nil {
		c.FactoryType = &ParameterizedType{ClassName: c.FactoryName}
		resolved, err := ResolveType(c.FactoryType, c)
		if err != nil {
			return newError(ErrUnresolvedName, c, "resolving factory: %v", err)
		}
		c.FactoryType = resolved
		if pt, ok := resolved.(*ParameterizedType); ok {
			c.FactoryClass = pt.Class
		}
	}

	for i, name := range c.Interfaces {
		if i < len(c.InterfaceTypes) && c.InterfaceTypes[i] != nil {
			continue
		}
		it := &ParameterizedType{ClassName: name}
		resolved, err := ResolveType(it, c)
		if err != nil {
			return newError(ErrUnresolvedName, c, "resolving interface %s: %v", name.Text(), err)
		}
		if len(c.InterfaceTypes) <= i {
			grown := make([]Type, i+1)
			copy(grown, c.InterfaceTypes)
			c.InterfaceTypes = grown
		}
		c.InterfaceTypes[i] = resolved
	}

	return nil
}

// detectSuperclassCycle walks the superclass chain with the tortoise-and-hare
// algorithm: a cycle exists iff the two pointers ever meet.
func detectSuperclassCycle(start *Class) bool {
	slow, fast := start, start
	for {
		if fast == nil || fast.Superclass == nil {
			return false
		}
		slow = slow.Superclass
		fast = fast.Superclass.Superclass
		if slow == nil || fast == nil {
			return false
		}
		if slow == fast {
			return true
		}
	}
}

// FinalizeClass runs the eight-step class-finalization procedure from §4.3.
func (f *Finalizer) FinalizeClass(c *Class) error {
	if c.State() == Finalized {
		return nil
	}
	if c.State() == BeingFinalized {
		return nil // already on the call stack; breaking the cycle here
	}
	c.setState(BeingFinalized)

	// 1. cycle detection on the superclass chain.
	if detectSuperclassCycle(c) {
		return newError(ErrCyclicSuperclass, c, "cyclic superclass chain")
	}

	// 2. resolve + validate the implemented-interface graph.
	if err := f.checkInterfaceGraph(c, map[*Class]bool{}); err != nil {
		return err
	}

	// 3. finalize superclass and its super-type; for an interface, finalize
	// the factory class and type too.
	if c.Superclass != nil {
		if err := f.FinalizeClass(c.Superclass); err != nil {
			return err
		}
	}
	if c.SuperType != nil {
		if err := f.FinalizeType(c.SuperType, c); err != nil {
			return err
		}
	}
	if c.IsInterface && c.FactoryClass != nil {
		if err := f.FinalizeClass(c.FactoryClass); err != nil {
			return err
		}
		if err := f.FinalizeType(c.FactoryType, c); err != nil {
			return err
		}
	}

	// 4. finalize each interface type.
	for _, it := range c.InterfaceTypes {
		if err := f.FinalizeType(it, c); err != nil {
			return err
		}
	}

	// 5. mark Finalized before resolving member types, to break cycles
	// through members (e.g. a field typed as the enclosing class).
	c.setState(Finalized)

	// 6. resolve and finalize every field type and function signature, then
	// check for field/function name collisions against every ancestor.
	if err := f.finalizeMembers(c); err != nil {
		c.setState(BeingFinalized) // undo the optimistic mark; caller must not retry
		return err
	}

	// 7. for non-interfaces, overriding methods must preserve arity and
	// named-parameter names.
	if !c.IsInterface {
		if err := f.checkOverrides(c); err != nil {
			return err
		}
	}

	// 8. const-class rules.
	if c.IsConst {
		if err := f.checkConstClass(c); err != nil {
			return err
		}
	}

	return nil
}

func (f *Finalizer) checkInterfaceGraph(c *Class, visiting map[*Class]bool) error {
	if visiting[c] {
		return newError(ErrCyclicInterface, c, "cyclic interface graph")
	}
	visiting[c] = true
	defer delete(visiting, c)

	for i, it := range c.InterfaceTypes {
		pt, ok := it.(*ParameterizedType)
		if !ok {
			if _, isParam := it.(*TypeParameter); isParam {
				return newError(ErrParameterAsInterface, c, "type parameter used as interface")
			}
			continue
		}
		if pt.Class == nil {
			return newError(ErrUnresolvedName, c, "unresolved interface at position %d", i)
		}
		if !pt.Class.IsInterface && pt.Class.Name.Text() != "Object" {
			return newError(ErrNotAnInterface, c, "%s is not an interface", pt.Class.Name.Text())
		}
		if err := f.checkInterfaceGraph(pt.Class, visiting); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeType runs the six-step type-finalization procedure from §4.3.
func (f *Finalizer) FinalizeType(t Type, owner *Class) error {
	pt, ok := t.(*ParameterizedType)
	if !ok {
		return nil // TypeParameter/InstantiatedType/top need no work
	}
	if pt.state == Finalized {
		return nil
	}
	if pt.state == BeingFinalized {
		return nil // self-reference guard
	}
	pt.state = BeingFinalized

	if pt.Class == nil {
		resolved, err := ResolveType(pt, owner)
		if err != nil {
			return newError(ErrUnresolvedName, owner, "%v", err)
		}
		*pt = *(resolved.(*ParameterizedType))
	}

	// 1. finalize each parsed type argument.
	for _, arg := range pt.Arguments {
		if err := f.FinalizeType(arg, owner); err != nil {
			return err
		}
	}

	// 2. raw vs. wrong-arity check.
	isRaw := pt.Arguments == nil
	if !isRaw && len(pt.Arguments) != pt.Class.NumTypeParameters() {
		return newError(ErrWrongArity, pt.Class, "expected %d type arguments, got %d",
			pt.Class.NumTypeParameters(), len(pt.Arguments))
	}

	// 3. build the full argument vector.
	full := make([]Type, pt.Class.NumTypeArguments())
	for i := range full {
		full[i] = TopType
	}
	tailOffset := pt.Class.TypeParameterOffset()
	if !isRaw {
		copy(full[tailOffset:], pt.Arguments)
	}
	if pt.Class.Superclass != nil && pt.Class.Superclass.SuperType != nil {
		superArgs := superclassArgumentVector(pt.Class)
		for i, arg := range superArgs {
			if i >= tailOffset {
				break
			}
			if tp, ok := arg.(*TypeParameter); ok {
				full[i] = InstantiateTypeFrom(tp, &TypeArray{Elements: full}, 0)
			} else {
				full[i] = arg
			}
		}
	}
	pt.full = full
	pt.state = Finalized

	// 4. bound checks.
	if f.CheckBounds && !isRaw {
		for i, bound := range pt.Class.TypeParameterUpperBounds {
			if bound == nil {
				continue
			}
			instantiatedBound := InstantiateTypeFrom(bound, &TypeArray{Elements: full}, tailOffset)
			arg := full[tailOffset+i]
			if !IsMoreSpecificThan(arg, instantiatedBound) {
				return newError(ErrWrongArity, pt.Class, "type argument %d does not satisfy its bound", i)
			}
		}
	}

	// 5. signature classes resolve their embedded function signature; left
	// as a hook for callers that maintain Function.SignatureClass linkage,
	// since resolving parameter/result types here would need the owning
	// function's scope, which this package does not track independently.

	return nil
}

// superclassArgumentVector returns the finalized type-argument vector a
// class's superclass type supplies (or an identity placeholder vector of
// type parameters when the superclass type has not been finalized yet).
func superclassArgumentVector(c *Class) []Type {
	super := c.Superclass
	if super == nil {
		return nil
	}
	if pt, ok := c.SuperType.(*ParameterizedType); ok && pt.full != nil {
		return pt.full
	}
	n := super.NumTypeArguments()
	out := make([]Type, n)
	for i := range out {
		out[i] = &TypeParameter{Index: i, Owner: c}
	}
	return out
}

func (f *Finalizer) finalizeMembers(c *Class) error {
	ancestorFieldNames := map[string]*Class{}
	ancestorFunctionNames := map[string]*Class{}
	for anc := c.Superclass; anc != nil; anc = anc.Superclass {
		for _, fld := range anc.Fields {
			ancestorFieldNames[fld.Name.Text()] = anc
		}
		for _, fn := range anc.Functions {
			ancestorFunctionNames[fn.Name.Text()] = anc
		}
	}

	offset := 0
	if c.Superclass != nil {
		offset = c.Superclass.NextFieldOffset
	}
	for _, fld := range c.Fields {
		fld.Owner = c
		if fld.Type != nil {
			if err := f.FinalizeType(fld.Type, c); err != nil {
				return err
			}
		}
		if !fld.IsStatic {
			if anc, collides := ancestorFunctionNames[fld.Name.Text()]; collides {
				return newError(ErrNameCollision, c, "field %s collides with %s's method", fld.Name.Text(), anc.Name.Text())
			}
			fld.Offset = offset
			offset++
		}
	}
	c.NextFieldOffset = offset

	for _, fn := range c.Functions {
		fn.Owner = c
		if fn.ResultType != nil {
			if err := f.FinalizeType(fn.ResultType, c); err != nil {
				return err
			}
		}
		for _, pt := range fn.ParameterTypes {
			if err := f.FinalizeType(pt, c); err != nil {
				return err
			}
		}
		if fn.Kind != KindGetter && fn.Kind != KindSetter {
			if anc, collides := ancestorFieldNames[fn.Name.Text()]; collides {
				return newError(ErrNameCollision, c, "function %s collides with %s's field", fn.Name.Text(), anc.Name.Text())
			}
		} else {
			if anc, collides := ancestorFunctionNames[fn.Name.Text()]; collides && anc != c {
				return newError(ErrNameCollision, c, "%s %s aliases ancestor %s's function",
					fn.Kind, fn.Name.Text(), anc.Name.Text())
			}
		}
	}

	return nil
}

func (k FunctionKind) String() string {
	names := [...]string{"function", "closure", "signature", "constructor",
		"implicit getter", "implicit setter", "const implicit getter",
		"abstract", "getter", "setter"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

func (f *Finalizer) checkOverrides(c *Class) error {
	if c.Superclass == nil {
		return nil
	}
	for _, fn := range c.Functions {
		if fn.IsStatic {
			continue
		}
		overridden := findMethod(c.Superclass, fn.Name.Text())
		if overridden == nil {
			continue
		}
		if fn.NumFixed != overridden.NumFixed || fn.NumOptional != overridden.NumOptional {
			return newError(ErrIncompatibleOverride, c, "%s overrides %s with a different arity",
				fn.Name.Text(), c.Superclass.Name.Text())
		}
		if !sameNames(fn.ParameterNames, overridden.ParameterNames) {
			return newError(ErrIncompatibleOverride, c, "%s overrides %s with different named parameters",
				fn.Name.Text(), c.Superclass.Name.Text())
		}
	}
	return nil
}

func findMethod(c *Class, name string) *Function {
	for cur := c; cur != nil; cur = cur.Superclass {
		for _, fn := range cur.Functions {
			if fn.Name.Text() == name && !fn.IsStatic {
				return fn
			}
		}
	}
	return nil
}

func sameNames(a, b []*symbols.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]bool{}
	for _, s := range a {
		seen[s.Text()] = true
	}
	for _, s := range b {
		if !seen[s.Text()] {
			return false
		}
	}
	return true
}

func (f *Finalizer) checkConstClass(c *Class) error {
	for anc := c.Superclass; anc != nil; anc = anc.Superclass {
		if !anc.IsConst {
			return newError(ErrNonConstSuperclass, c, "const class extends non-const %s", anc.Name.Text())
		}
	}
	for _, fld := range c.Fields {
		if !fld.IsStatic && !fld.IsFinal {
			return newError(ErrNonFinalField, c, "const class has non-final field %s", fld.Name.Text())
		}
	}
	return nil
}
