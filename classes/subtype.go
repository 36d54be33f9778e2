package classes

// IsMoreSpecificThan implements the five-rule subtype test from §4.3:
//
//  1. the top type is more specific than everything, and everything is more
//     specific than the top type (it behaves as both bottom and top);
//  2. identical type-parameter references are trivially related;
//  3. a type parameter is more specific than another type iff its upper
//     bound is;
//  4. a parameterized type is more specific than another iff its class is
//     the same class or a descendant, found by walking the interface and
//     superclass edges, and every instantiated type argument at that
//     ancestor is pairwise more specific than the target's;
//  5. two function-signature classes are related by signature
//     assignability rather than by class identity.
func IsMoreSpecificThan(a, b Type) bool {
	if IsTop(a) || IsTop(b) {
		return true
	}
	a = Resolve(a)
	b = Resolve(b)

	if ap, ok := a.(*TypeParameter); ok {
		if bp, ok := b.(*TypeParameter); ok && ap.Owner == bp.Owner && ap.Index == bp.Index {
			return true
		}
		bound := ap.Owner.boundOf(ap.Index)
		if bound == nil {
			return false
		}
		return IsMoreSpecificThan(bound, b)
	}

	apt, aOK := a.(*ParameterizedType)
	bpt, bOK := b.(*ParameterizedType)
	if !aOK || !bOK {
		return false
	}
	if apt.Class == nil || bpt.Class == nil {
		return false
	}

	if apt.Class.Functions != nil && isSignatureClass(apt.Class) && isSignatureClass(bpt.Class) {
		af := signatureFunction(apt.Class)
		bf := signatureFunction(bpt.Class)
		if af != nil && bf != nil {
			return functionsAssignable(af, bf)
		}
	}

	args, ok := matchAncestor(apt, bpt.Class)
	if !ok {
		return false
	}
	bArgs := bpt.full
	if bArgs == nil {
		bArgs = bpt.Arguments
	}
	for i := range args {
		var bArg Type = TopType
		if i < len(bArgs) {
			bArg = bArgs[i]
		}
		if !IsMoreSpecificThan(args[i], bArg) {
			return false
		}
	}
	return true
}

func (c *Class) boundOf(index int) Type {
	if index < 0 || index >= len(c.TypeParameterUpperBounds) {
		return nil
	}
	return c.TypeParameterUpperBounds[index]
}

func isSignatureClass(c *Class) bool {
	for _, fn := range c.Functions {
		if fn.Kind == KindSignature {
			return true
		}
	}
	return false
}

func signatureFunction(c *Class) *Function {
	for _, fn := range c.Functions {
		if fn.Kind == KindSignature {
			return fn
		}
	}
	return nil
}

// matchAncestor walks apt's class upward through its superclass chain and
// sideways through its interfaces looking for target; it returns the type
// arguments apt supplies at that ancestor, expressed in target's own
// parameter positions.
func matchAncestor(apt *ParameterizedType, target *Class) ([]Type, bool) {
	args := apt.full
	if args == nil {
		args = apt.Arguments
	}
	return matchAncestorClass(apt.Class, args, target)
}

func matchAncestorClass(c *Class, args []Type, target *Class) ([]Type, bool) {
	if c == nil {
		return nil, false
	}
	if c == target || c.Name.Text() == target.Name.Text() {
		return args, true
	}
	if c.Superclass != nil {
		superArgs := instantiateAgainst(c.SuperType, args)
		if found, ok := matchAncestorClass(c.Superclass, superArgs, target); ok {
			return found, true
		}
	}
	for _, it := range c.InterfaceTypes {
		ipt, ok := it.(*ParameterizedType)
		if !ok || ipt.Class == nil {
			continue
		}
		ifaceArgs := instantiateAgainst(it, args)
		if found, ok := matchAncestorClass(ipt.Class, ifaceArgs, target); ok {
			return found, true
		}
	}
	return nil, false
}

// instantiateAgainst resolves t's own type arguments (which may reference
// the enclosing class's type parameters) against args, the enclosing
// instance's concrete argument vector.
func instantiateAgainst(t Type, args []Type) []Type {
	pt, ok := t.(*ParameterizedType)
	if !ok {
		return nil
	}
	src := pt.Arguments
	if src == nil {
		return nil
	}
	out := make([]Type, len(src))
	for i, arg := range src {
		out[i] = InstantiateTypeFrom(arg, &TypeArray{Elements: args}, 0)
	}
	return out
}

// functionsAssignable implements bidirectional function-type assignability:
// for each parameter position, one of the two parameter types must be more
// specific than the other (either direction is accepted), the arities and
// named-parameter sets must match, and the result type follows the same
// bidirectional rule rather than strict covariance.
func functionsAssignable(a, b *Function) bool {
	if a.NumFixed != b.NumFixed || len(a.ParameterTypes)-len(a.ParameterNames) != len(b.ParameterTypes)-len(b.ParameterNames) {
		return false
	}
	if !sameNames(a.ParameterNames, b.ParameterNames) {
		return false
	}
	for i := range a.ParameterTypes {
		if i >= len(b.ParameterTypes) {
			return false
		}
		at, bt := a.ParameterTypes[i], b.ParameterTypes[i]
		if !IsMoreSpecificThan(at, bt) && !IsMoreSpecificThan(bt, at) {
			return false
		}
	}
	if a.ResultType != nil && b.ResultType != nil {
		if !IsMoreSpecificThan(a.ResultType, b.ResultType) && !IsMoreSpecificThan(b.ResultType, a.ResultType) {
			return false
		}
	}
	return true
}
