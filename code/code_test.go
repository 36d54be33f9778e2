package code_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/code"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/symbols"
)

func TestFinalizeCodeAttachesBothWays(t *testing.T) {
	h := heap.NewHeap()
	table := symbols.NewTable()
	lib := symbols.NewLibrary(table.NewSymbol("test:lib"), table.NewSymbol("lib"))
	class := classes.NewClass(table.NewSymbol("C"), lib)
	fn := &classes.Function{Name: table.NewSymbol("foo"), Owner: class}

	assembled := []byte{0x90, 0x90, 0x90, 0x90}
	c, err := code.FinalizeCode(h, fn, false, assembled, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Same(t, c, fn.Code)
	require.Same(t, c, fn.UnoptimizedCode)
	require.Equal(t, c.Instructions.Bytes, assembled)
	require.NotZero(t, c.EntryPoint())
}

func TestFinalizeCodeRejectsWriteOutsideFinalization(t *testing.T) {
	h := heap.NewHeap()
	_, err := h.Allocate(nil, classes.KindInstructions, heap.ExecutableSpace, 0, 4)
	require.Error(t, err)
}

func TestFinalizeCodeResolvesEmbeddedPointers(t *testing.T) {
	h := heap.NewHeap()
	table := symbols.NewTable()
	lib := symbols.NewLibrary(table.NewSymbol("test:lib"), table.NewSymbol("lib"))
	class := classes.NewClass(table.NewSymbol("C"), lib)
	obj, err := h.Allocate(class, classes.KindInstance, heap.NewSpace, 0, 0)
	require.NoError(t, err)
	want := heap.NewPointer(obj)

	resolver := func(offset int) (heap.Reference, error) { return want, nil }
	c, err := code.FinalizeCode(h, nil, true, []byte{0, 0, 0, 0, 0, 0, 0, 0}, []int{0}, nil, nil, resolver)
	require.NoError(t, err)
	require.Len(t, c.Instructions.EmbeddedPointers, 1)
	require.Equal(t, obj, c.Instructions.EmbeddedPointers[0].Object())
}

func TestPcDescriptorsLinearScan(t *testing.T) {
	descs := code.PcDescriptors{
		{PC: 0x10, Kind: code.Other, TokenIndex: 1},
		{PC: 0x20, Kind: code.Deopt, NodeID: 7, TokenIndex: 2},
		{PC: 0x30, Kind: code.PatchCode, TokenIndex: 3},
	}

	require.Equal(t, 2, descs.GetTokenIndexOfPC(0x20))
	pc, ok := descs.GetDeoptPcAtNodeId(7)
	require.True(t, ok)
	require.Equal(t, uintptr(0x20), pc)

	patchPC, ok := descs.GetPatchCodePc()
	require.True(t, ok)
	require.Equal(t, uintptr(0x30), patchPC)
}

func TestICStubInstallAndFind(t *testing.T) {
	c := &code.Code{}
	stub := &code.ICStub{CallSiteID: 1, Entries: []code.ICCacheEntry{{}}}
	c.InstallICStub(stub)

	found, ok := c.FindICStub(1)
	require.True(t, ok)
	require.Same(t, stub, found)

	widened := &code.ICStub{CallSiteID: 1, Entries: []code.ICCacheEntry{{}, {}}}
	c.InstallICStub(widened)
	found, ok = c.FindICStub(1)
	require.True(t, ok)
	require.Len(t, found.Entries, 2)
}

func TestExceptionHandlersLookup(t *testing.T) {
	var handlers code.ExceptionHandlers
	handlers.Append(0, 0x100)
	handlers.Append(1, 0x200)

	pc, ok := handlers.Lookup(1)
	require.True(t, ok)
	require.Equal(t, uintptr(0x200), pc)

	_, ok = handlers.Lookup(2)
	require.False(t, ok)
}
