package heap

// ObjectPointerVisitor is implemented by a GC or verifier; VisitPointers is
// called once per contiguous reference range discovered during traversal.
type ObjectPointerVisitor interface {
	VisitPointers(obj *HeapObject, first, last []Reference)
}

// ObjectPointerVisitorFunc adapts a plain function to ObjectPointerVisitor.
type ObjectPointerVisitorFunc func(obj *HeapObject, first, last []Reference)

func (f ObjectPointerVisitorFunc) VisitPointers(obj *HeapObject, first, last []Reference) {
	f(obj, first, last)
}

// Visit dispatches traversal of obj to visitor: the class pointer is
// conceptually visited first (obj.Class is not itself a Reference in this
// representation, so there is nothing further to hand the visitor for it),
// then every reference-typed field is handed over as a single contiguous
// range. Variable-size kinds with no reference fields of their own (raw
// string/token-stream payloads) produce an empty range.
//
// Code/Instructions objects are not visited here: their embedded pointers
// live in a side table the code package owns (see code.Code.VisitPointers),
// since that package is the one that knows how pointer_offsets maps onto
// Instructions bytes.
func Visit(obj *HeapObject, visitor ObjectPointerVisitor) {
	if obj == nil || len(obj.Fields) == 0 {
		visitor.VisitPointers(obj, nil, nil)
		return
	}
	visitor.VisitPointers(obj, obj.Fields[:1], obj.Fields[len(obj.Fields)-1:])
}

// VisitAll walks every field reference individually, which is what a
// moving collector needs in order to update each slot in place.
func VisitAll(obj *HeapObject, each func(slot *Reference)) {
	for i := range obj.Fields {
		each(&obj.Fields[i])
	}
}

// Class descriptors are classes.Class values, not HeapObjects, and isolate
// bootstrap builds no class-of-classes object; Visit therefore has no
// metaclass case.
