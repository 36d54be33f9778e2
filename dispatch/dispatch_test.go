package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/code"
	"github.com/coreruntime/vmcore/dispatch"
	"github.com/coreruntime/vmcore/isolate"
	"github.com/coreruntime/vmcore/symbols"
)

func finalizedClass(t *testing.T, iso *isolate.Isolate, name string, numFields int) *classes.Class {
	t.Helper()
	url := iso.Symbols().NewSymbol("test:" + name)
	lib := symbols.NewLibrary(url, iso.Symbols().NewSymbol(name))
	require.NoError(t, iso.Libraries().Add(lib))

	c := classes.NewClass(iso.Symbols().NewSymbol(name), lib)
	for i := 0; i < numFields; i++ {
		c.Fields = append(c.Fields, &classes.Field{Name: iso.Symbols().NewSymbol("f")})
	}
	lib.Register(symbols.EntryClass, c.Name, c)

	iso.EnqueuePendingClass(c)
	require.NoError(t, iso.FinalizeAll())
	require.True(t, c.IsFinalized())
	return c
}

func TestAllocateObjectInitializesFieldsToNull(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	class := finalizedClass(t, iso, "Point", 2)

	obj, err := d.AllocateObject(class)
	require.NoError(t, err)
	require.Len(t, obj.Fields, 2)
	for _, f := range obj.Fields {
		require.True(t, f.IsNull())
	}
}

func TestAllocateArrayInitializesElementsToNull(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	class := finalizedClass(t, iso, "ArrayClass", 0)

	obj, err := d.AllocateArray(class, 5, nil)
	require.NoError(t, err)
	require.Len(t, obj.Fields, 5)
	for _, f := range obj.Fields {
		require.True(t, f.IsNull())
	}
}

func TestInstanceofAcrossSuperclassChain(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)

	url := iso.Symbols().NewSymbol("test:hierarchy")
	lib := symbols.NewLibrary(url, iso.Symbols().NewSymbol("hierarchy"))
	require.NoError(t, iso.Libraries().Add(lib))

	base := classes.NewClass(iso.Symbols().NewSymbol("Animal"), lib)
	derived := classes.NewClass(iso.Symbols().NewSymbol("Dog"), lib)
	derived.SuperclassName = iso.Symbols().NewSymbol("Animal")
	lib.Register(symbols.EntryClass, base.Name, base)
	lib.Register(symbols.EntryClass, derived.Name, derived)

	iso.EnqueuePendingClass(base)
	iso.EnqueuePendingClass(derived)
	require.NoError(t, iso.FinalizeAll())

	obj, err := d.AllocateObject(derived)
	require.NoError(t, err)

	target := &classes.ParameterizedType{Class: base}
	require.True(t, d.Instanceof(obj, target, nil))

	unrelated := classes.NewClass(iso.Symbols().NewSymbol("Unrelated"), lib)
	require.False(t, d.Instanceof(obj, &classes.ParameterizedType{Class: unrelated}, nil))
}

func makeCode(t *testing.T, iso *isolate.Isolate, fn *classes.Function, bytes []byte) *code.Code {
	t.Helper()
	c, err := code.FinalizeCode(iso.Heap(), fn, false, bytes, nil, nil, nil, nil)
	require.NoError(t, err)
	return c
}

func TestICStubInstallThenWiden(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)

	classA := finalizedClass(t, iso, "A", 0)
	classB := finalizedClass(t, iso, "B", 0)

	callee := &classes.Function{Name: iso.Symbols().NewSymbol("greet")}
	calleeCode := makeCode(t, iso, callee, []byte{0x90})
	callerCode := makeCode(t, iso, &classes.Function{Name: iso.Symbols().NewSymbol("caller")}, []byte{0x90})

	objA, err := d.AllocateObject(classA)
	require.NoError(t, err)
	objB, err := d.AllocateObject(classB)
	require.NoError(t, err)

	classA.Functions = append(classA.Functions, callee)
	callee.Code = calleeCode
	classB.Functions = append(classB.Functions, &classes.Function{Name: iso.Symbols().NewSymbol("greet"), Code: calleeCode})

	desc := d.CanonicalizeDescriptor(0, 0, nil)

	_, err = d.ResolvePatchInstanceCall(callerCode, 1, objA, "greet", desc)
	require.NoError(t, err)
	stub, ok := callerCode.FindICStub(1)
	require.True(t, ok)
	require.Len(t, stub.Entries, 1)

	_, err = d.ResolvePatchInstanceCall(callerCode, 1, objB, "greet", desc)
	require.NoError(t, err)
	stub, ok = callerCode.FindICStub(1)
	require.True(t, ok)
	require.Len(t, stub.Entries, 2)

	target, ok := d.LookupICStub(callerCode, 1, classA)
	require.True(t, ok)
	require.Same(t, calleeCode, target)
}

func TestICStubNeverInstallsNullReceiver(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	callerCode := makeCode(t, iso, &classes.Function{Name: iso.Symbols().NewSymbol("caller")}, []byte{0x90})
	desc := d.CanonicalizeDescriptor(0, 0, nil)

	_, err := d.ResolvePatchInstanceCall(callerCode, 1, nil, "greet", desc)
	require.Error(t, err)
	_, ok := callerCode.FindICStub(1)
	require.False(t, ok)
}

func TestDeoptimizeFindsUnoptimizedPC(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)

	fn := &classes.Function{Name: iso.Symbols().NewSymbol("hot")}
	unoptimized := makeCode(t, iso, fn, []byte{0x90, 0x90})
	fn.UnoptimizedCode = unoptimized
	unoptimized.PcDescriptorTable = code.PcDescriptors{{PC: 1, Kind: code.Deopt, NodeID: 42}}

	info, err := d.Deoptimize(fn, 42)
	require.NoError(t, err)
	require.EqualValues(t, 1, info.UnoptimizedPC)
	require.EqualValues(t, 1, fn.DeoptimizationCounter)
}

func TestDisableOldCodeRetargetsICStubs(t *testing.T) {
	iso := isolate.New()
	oldCode := makeCode(t, iso, &classes.Function{Name: iso.Symbols().NewSymbol("old")}, []byte{0x90})
	newCode := makeCode(t, iso, &classes.Function{Name: iso.Symbols().NewSymbol("new")}, []byte{0x90})
	class := finalizedClass(t, iso, "Receiver", 0)

	oldCode.InstallICStub(&code.ICStub{CallSiteID: 7, Entries: []code.ICCacheEntry{{ReceiverClass: class, Target: oldCode}}})

	dispatch.DisableOldCode(oldCode, newCode)

	stub, ok := oldCode.FindICStub(7)
	require.True(t, ok)
	require.Same(t, newCode, stub.Entries[0].Target)
}

func TestOptimizeInvokedFunctionCrossesThreshold(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	fn := &classes.Function{Name: iso.Symbols().NewSymbol("loopBody")}

	crossed := false
	for i := 0; i < 10001; i++ {
		if d.OptimizeInvokedFunction(fn) {
			crossed = true
		}
	}
	require.True(t, crossed)
	require.EqualValues(t, 10001, fn.InvocationCounter)
}

func TestReportClosureArgumentMismatch(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	fn := &classes.Function{Name: iso.Symbols().NewSymbol("takesOne"), NumFixed: 1}
	class := finalizedClass(t, iso, "Closure", 0)
	closure, err := d.AllocateClosure(class, fn, nil)
	require.NoError(t, err)

	desc := d.CanonicalizeDescriptor(0, 0, nil)
	_, err = d.InvokeImplicitClosureFunction(closure, desc)
	require.Error(t, err)
}

func TestInvokeNoSuchMethodFunctionFallsBackToSynthetic(t *testing.T) {
	iso := isolate.New()
	d := dispatch.New(iso)
	class := finalizedClass(t, iso, "Empty", 0)
	desc := d.CanonicalizeDescriptor(0, 0, nil)

	_, err := d.InvokeNoSuchMethodFunction(class, "missing", desc)
	require.Error(t, err)
}
