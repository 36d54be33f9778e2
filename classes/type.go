package classes

import "github.com/coreruntime/vmcore/symbols"

// TopType is the sentinel representing the unbounded "var"/top type: every
// type is more specific than it, and it is more specific than every type.
var TopType Type = &topType{}

// Type is a polymorphic value with three variants: ParameterizedType,
// TypeParameter, and InstantiatedType. Implementations are closed to this
// package; callers type-switch rather than add new variants.
type Type interface {
	isType()
	// Finalized reports whether this type has completed Finalize.
	Finalized() bool
}

type topType struct{}

func (*topType) isType()        {}
func (*topType) Finalized() bool { return true }

// IsTop reports whether t is the top type sentinel.
func IsTop(t Type) bool {
	_, ok := t.(*topType)
	return ok
}

// ParameterizedType names a class, optionally applied to type arguments. The
// class may start out as an unresolved name and get rewritten in place by
// Resolve.
type ParameterizedType struct {
	// ClassName is set until resolution rewrites this node; Class is set
	// after. Exactly one should be non-nil at any stable point in time.
	ClassName *symbols.Symbol
	Class     *Class

	Arguments []Type // nil means "raw": no arguments were written at the use site
	full      []Type // the full, flattened argument vector built by Finalize

	state State
}

func (*ParameterizedType) isType() {}

// Finalized reports whether this parameterized type finished Finalize.
func (t *ParameterizedType) Finalized() bool { return t.state == Finalized }

// IsRaw reports whether the use site supplied no type arguments at all.
func (t *ParameterizedType) IsRaw() bool { return t.Arguments == nil }

// FullArguments returns the flattened type-argument vector built by
// Finalize (length == Class.NumTypeArguments()). Calling this before
// finalization returns nil.
func (t *ParameterizedType) FullArguments() []Type { return t.full }

// TypeParameter references a parameter position on the enclosing class by
// index; Index counts from the start of that class's own type-parameter
// list (not the full vector).
type TypeParameter struct {
	Index int
	Name  string
	Owner *Class
}

func (*TypeParameter) isType()         {}
func (*TypeParameter) Finalized() bool { return true }

// InstantiatedType is a lazy instantiation view: Uninstantiated still
// contains TypeParameter references, resolved against InstantiatorArguments
// only when actually inspected.
type InstantiatedType struct {
	Uninstantiated       Type
	InstantiatorArguments TypeArguments
}

func (*InstantiatedType) isType()         {}
func (*InstantiatedType) Finalized() bool { return true }

// Resolve replaces an InstantiatedType with its concrete form by walking the
// instantiator; for non-instantiated variants it is the identity.
func Resolve(t Type) Type {
	inst, ok := t.(*InstantiatedType)
	if !ok {
		return t
	}
	switch u := inst.Uninstantiated.(type) {
	case *TypeParameter:
		fullIndex := u.Owner.TypeParameterOffset() + u.Index
		return inst.InstantiatorArguments.At(fullIndex)
	default:
		return u
	}
}

// ---- TypeArguments ----

// TypeArguments is a polymorphic vector of Type, with two variants: TypeArray
// (concrete, eagerly stored) and InstantiatedTypeArguments (a lazy view over
// an uninstantiated vector plus an instantiator).
type TypeArguments interface {
	Length() int
	At(i int) Type
	IsInstantiated() bool
	InstantiateFrom(instantiator TypeArguments, offset int) TypeArguments
}

// TypeArray is a concrete, fully-materialized type-argument vector.
type TypeArray struct {
	Elements []Type
}

func (a *TypeArray) Length() int { return len(a.Elements) }

func (a *TypeArray) At(i int) Type {
	if i < 0 || i >= len(a.Elements) {
		return TopType
	}
	return a.Elements[i]
}

func (a *TypeArray) IsInstantiated() bool {
	for _, t := range a.Elements {
		if tp, ok := t.(*TypeParameter); ok {
			_ = tp
			return false
		}
		if pt, ok := t.(*ParameterizedType); ok && pt.full != nil {
			for _, arg := range pt.full {
				if !arg.Finalized() {
					return false
				}
			}
		}
	}
	return true
}

// IsUninstantiatedIdentity reports whether every slot i holds exactly
// TypeParameter{Index: i}, the condition under which InstantiateFrom may
// return the instantiator vector verbatim without allocating.
func (a *TypeArray) IsUninstantiatedIdentity() bool {
	for i, t := range a.Elements {
		tp, ok := t.(*TypeParameter)
		if !ok || tp.Index != i {
			return false
		}
	}
	return true
}

// InstantiateFrom replaces every TypeParameter{i} in this vector with
// instantiator[i+offset]. When the vector is the uninstantiated-identity
// vector and has the same length as the instantiator, the instantiator is
// returned verbatim (no allocation) and offset is not applied.
func (a *TypeArray) InstantiateFrom(instantiator TypeArguments, offset int) TypeArguments {
	if a.IsUninstantiatedIdentity() && instantiator != nil && instantiator.Length() == len(a.Elements) {
		return instantiator
	}
	out := make([]Type, len(a.Elements))
	for i, t := range a.Elements {
		out[i] = InstantiateTypeFrom(t, instantiator, offset)
	}
	return &TypeArray{Elements: out}
}

// InstantiatedTypeArguments is a lazy view: Uninstantiated may still
// reference type parameters, which get resolved against Instantiator only
// when a slot is actually read.
type InstantiatedTypeArguments struct {
	Uninstantiated TypeArguments
	Instantiator   TypeArguments
	Offset         int
}

func (a *InstantiatedTypeArguments) Length() int { return a.Uninstantiated.Length() }

func (a *InstantiatedTypeArguments) At(i int) Type {
	return InstantiateTypeFrom(a.Uninstantiated.At(i), a.Instantiator, a.Offset)
}

func (a *InstantiatedTypeArguments) IsInstantiated() bool { return false }

func (a *InstantiatedTypeArguments) InstantiateFrom(instantiator TypeArguments, offset int) TypeArguments {
	return &InstantiatedTypeArguments{Uninstantiated: a, Instantiator: instantiator, Offset: offset}
}

// InstantiateTypeFrom is TypeArgument::InstantiateFrom from the
// specification applied to a single Type rather than a whole vector: a
// TypeParameter is replaced by instantiator[index+offset]; anything already
// instantiated is the identity; everything else gets wrapped lazily.
func InstantiateTypeFrom(t Type, instantiator TypeArguments, offset int) Type {
	switch v := t.(type) {
	case *TypeParameter:
		if instantiator == nil {
			return TopType
		}
		return instantiator.At(v.Index + offset)
	case *topType:
		return TopType
	case *ParameterizedType:
		if v.Finalized() && isConcreteClosed(v) {
			return v
		}
		return &InstantiatedType{Uninstantiated: v, InstantiatorArguments: instantiator}
	default:
		return &InstantiatedType{Uninstantiated: t, InstantiatorArguments: instantiator}
	}
}

// isConcreteClosed reports whether a finalized parameterized type's full
// argument vector contains no remaining type parameters.
func isConcreteClosed(t *ParameterizedType) bool {
	for _, arg := range t.full {
		if _, ok := arg.(*TypeParameter); ok {
			return false
		}
	}
	return true
}
