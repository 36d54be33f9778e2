package isolate

import (
	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/symbols"
)

// ObjectStore holds the handful of singletons and bootstrap classes every
// isolate needs before any user code runs: the pre-allocated true/false/
// empty-array instances and the core class descriptors (Object, bool,
// array, string, exception). It holds no empty-context instance. A real VM snapshot would
// restore these directly into place; this core always builds them fresh
// during Bootstrap.
type ObjectStore struct {
	ObjectClass    *classes.Class
	BoolClass      *classes.Class
	ArrayClass     *classes.Class
	StringClass    *classes.Class
	ExceptionClass *classes.Class

	True       *heap.HeapObject
	False      *heap.HeapObject
	EmptyArray *heap.HeapObject
}

// Bootstrap finalizes the core class hierarchy and allocates this isolate's
// singletons, mirroring the source's Isolate::Init / Object::InitOnce pair
// (ObjectStore + bootstrap classes are built once, up front, before any
// library registration).
func (iso *Isolate) Bootstrap() error {
	object := classes.NewClass(iso.symbols.NewSymbol("Object"), coreLibraryResolver{iso})
	boolClass := classes.NewClass(iso.symbols.NewSymbol("bool"), coreLibraryResolver{iso})
	boolClass.SuperclassName = object.Name
	arrayClass := classes.NewClass(iso.symbols.NewSymbol("Array"), coreLibraryResolver{iso})
	arrayClass.SuperclassName = object.Name
	arrayClass.InstanceKindTag = classes.KindArray
	stringClass := classes.NewClass(iso.symbols.NewSymbol("String"), coreLibraryResolver{iso})
	stringClass.SuperclassName = object.Name
	stringClass.InstanceKindTag = classes.KindString
	exceptionClass := classes.NewClass(iso.symbols.NewSymbol("UnhandledException"), coreLibraryResolver{iso})
	exceptionClass.SuperclassName = object.Name

	bootstrap := []*classes.Class{object, boolClass, arrayClass, stringClass, exceptionClass}
	for _, c := range bootstrap {
		iso.bootstrapClasses = append(iso.bootstrapClasses, c)
		iso.EnqueuePendingClass(c)
	}
	if err := iso.FinalizeAll(); err != nil {
		return err
	}

	trueObj, err := iso.heap.Allocate(boolClass, classes.KindInstance, heap.NewSpace, 0, 0)
	if err != nil {
		return err
	}
	falseObj, err := iso.heap.Allocate(boolClass, classes.KindInstance, heap.NewSpace, 0, 0)
	if err != nil {
		return err
	}
	emptyArray, err := iso.heap.Allocate(arrayClass, classes.KindArray, heap.NewSpace, 0, 0)
	if err != nil {
		return err
	}

	iso.store = &ObjectStore{
		ObjectClass:    object,
		BoolClass:      boolClass,
		ArrayClass:     arrayClass,
		StringClass:    stringClass,
		ExceptionClass: exceptionClass,
		True:           trueObj,
		False:          falseObj,
		EmptyArray:     emptyArray,
	}
	return nil
}

// Store returns the isolate's bootstrap object store, or nil if Bootstrap
// has not been called yet.
func (iso *Isolate) Store() *ObjectStore { return iso.store }

// coreLibraryResolver resolves bootstrap class names against the set of
// classes an isolate has already finalized, so the core hierarchy
// (bool/Array/String/UnhandledException, all superclassed on Object) can
// resolve without depending on a real library registration up front.
type coreLibraryResolver struct {
	iso *Isolate
}

func (r coreLibraryResolver) LookupLocalClass(name string) (*symbols.Entry, bool) {
	return r.lookup(name)
}

func (r coreLibraryResolver) LookupClass(name string) (*symbols.Entry, bool) {
	return r.lookup(name)
}

func (r coreLibraryResolver) lookup(name string) (*symbols.Entry, bool) {
	for _, c := range r.iso.bootstrapClasses {
		if c.Name.Text() == name {
			return &symbols.Entry{Name: c.Name, Kind: symbols.EntryClass, Value: c}, true
		}
	}
	return nil, false
}
