package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/symbols"
)

func TestAllocateNewSpaceObject(t *testing.T) {
	h := heap.NewHeap()
	table := symbols.NewTable()
	lib := symbols.NewLibrary(table.NewSymbol("test:lib"), table.NewSymbol("lib"))
	class := classes.NewClass(table.NewSymbol("Point"), lib)
	class.InstanceSize = 16

	obj, err := h.Allocate(class, classes.KindInstance, heap.NewSpace, 2, 0)
	require.NoError(t, err)
	require.Equal(t, heap.NewSpace, obj.Space)
	require.Equal(t, 16, heap.ObjectSize(obj))
	require.Len(t, obj.Fields, 2)
	require.True(t, obj.Fields[0].IsSmallInt())
}

func TestExecutableSpaceRejectsWriteOutsideFinalization(t *testing.T) {
	h := heap.NewHeap()
	_, err := h.Allocate(nil, classes.KindInstructions, heap.ExecutableSpace, 0, 64)
	require.Error(t, err)

	h.SetExecutableWritable(true)
	obj, err := h.Allocate(nil, classes.KindInstructions, heap.ExecutableSpace, 0, 64)
	require.NoError(t, err)
	require.Len(t, obj.Payload, 64)
}

func TestNoGCScopeNesting(t *testing.T) {
	h := heap.NewHeap()
	require.False(t, h.InNoGCScope())
	h.EnterNoGC()
	h.EnterNoGC()
	require.True(t, h.InNoGCScope())
	h.ExitNoGC()
	require.True(t, h.InNoGCScope())
	h.ExitNoGC()
	require.False(t, h.InNoGCScope())
}

func TestSmallIntRangeBoundary(t *testing.T) {
	ref := heap.NewSmallInt(42)
	require.True(t, ref.IsSmallInt())
	require.Equal(t, int64(42), ref.SmallInt())
	require.True(t, heap.InSmallIntRange(ref.SmallInt()))

	require.True(t, heap.InSmallIntRange(int64(1)<<62-1))
	require.True(t, heap.InSmallIntRange(-int64(1)<<62))
	require.False(t, heap.InSmallIntRange(int64(1)<<62))
	require.False(t, heap.InSmallIntRange(-int64(1)<<62-1))
}

func TestVariableSizeObjectUsesFieldLength(t *testing.T) {
	h := heap.NewHeap()
	table := symbols.NewTable()
	lib := symbols.NewLibrary(table.NewSymbol("test:lib"), table.NewSymbol("lib"))
	class := classes.NewClass(table.NewSymbol("List"), lib)

	obj, err := h.Allocate(class, classes.KindArray, heap.NewSpace, 5, 0)
	require.NoError(t, err)
	require.Equal(t, 40, heap.ObjectSize(obj))
}
