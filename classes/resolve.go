package classes

import "fmt"

// ResolveType implements the four-step name-resolution algorithm from the
// specification. owner is the class whose member (field type, parameter
// type, superclass reference, ...) this node was parsed from; it supplies
// both the type-parameter scope and the library to search.
func ResolveType(t Type, owner *Class) (Type, error) {
	pt, ok := t.(*ParameterizedType)
	if !ok {
		return t, nil // TypeParameter/InstantiatedType/top are already resolved
	}
	if pt.Class != nil {
		return pt, nil // step 1: already resolved
	}

	name := pt.ClassName.Text()

	// step 2: a bare name matching one of owner's type parameters becomes a
	// TypeParameter reference. Such a reference may not itself carry type
	// arguments.
	for i, paramName := range owner.TypeParameterNames {
		if paramName == name {
			if len(pt.Arguments) > 0 {
				return nil, fmt.Errorf("type parameter %q cannot be parameterized", name)
			}
			return &TypeParameter{Index: i, Name: name, Owner: owner}, nil
		}
	}

	// step 3: look up the class-name in the owning library's dictionary.
	if owner.library == nil {
		return nil, fmt.Errorf("class %q has no library to resolve %q against", owner.Name.Text(), name)
	}
	entry, ok := owner.library.LookupClass(name)
	if !ok {
		return nil, fmt.Errorf("cannot resolve class %q", name)
	}
	resolved, ok := entry.Value.(*Class)
	if !ok {
		return nil, fmt.Errorf("dictionary entry %q is not a class", name)
	}
	pt.Class = resolved
	pt.ClassName = nil

	// step 4: recursively resolve every type argument of the node.
	for i, arg := range pt.Arguments {
		resolvedArg, err := ResolveType(arg, owner)
		if err != nil {
			return nil, err
		}
		pt.Arguments[i] = resolvedArg
	}

	return pt, nil
}
