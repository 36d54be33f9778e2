package isolate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
	"github.com/coreruntime/vmcore/isolate"
	"github.com/coreruntime/vmcore/symbols"
)

func TestSetCurrentRequiresExitingPrevious(t *testing.T) {
	a := isolate.New()
	b := isolate.New()

	require.NoError(t, isolate.SetCurrent(a))
	require.Same(t, a, isolate.Current())

	err := isolate.SetCurrent(b)
	require.Error(t, err)

	isolate.ExitCurrent(a)
	require.NoError(t, isolate.SetCurrent(b))
	isolate.ExitCurrent(b)
}

func TestZoneStackPushPopDepth(t *testing.T) {
	iso := isolate.New()
	zones := iso.Zones()
	require.Equal(t, 0, zones.Depth())

	z1 := zones.Push()
	b := z1.Allocate(16)
	require.Len(t, b, 16)
	require.Equal(t, 1, zones.Depth())

	zones.Push()
	require.Equal(t, 2, zones.Depth())
	zones.Pop()
	require.Equal(t, 1, zones.Depth())
	require.Same(t, z1, zones.Current())
	zones.Pop()
	require.Equal(t, 0, zones.Depth())
}

func TestHandleScopeRejectsAllocationInNoHandleScope(t *testing.T) {
	iso := isolate.New()
	iso.Heap().EnterNoHandleScope()
	defer func() {
		r := recover()
		require.NotNil(t, r)
	}()
	iso.WithHandleScope(func(s *isolate.HandleScope) {
		s.NewHandle(isolate.ScopedHandle, heap.Null)
	})
}

func TestFinalizeAllRecordsStickyErrorOnCycle(t *testing.T) {
	iso := isolate.New()
	url := iso.Symbols().NewSymbol("test:lib")
	library := symbols.NewLibrary(url, iso.Symbols().NewSymbol("lib"))
	require.NoError(t, iso.Libraries().Add(library))

	a := classes.NewClass(iso.Symbols().NewSymbol("A"), library)
	b := classes.NewClass(iso.Symbols().NewSymbol("B"), library)
	a.SuperclassName = iso.Symbols().NewSymbol("B")
	b.SuperclassName = iso.Symbols().NewSymbol("A")
	library.Register(symbols.EntryClass, a.Name, a)
	library.Register(symbols.EntryClass, b.Name, b)

	iso.EnqueuePendingClass(a)
	iso.EnqueuePendingClass(b)

	err := iso.FinalizeAll()
	require.Error(t, err)
	require.NotEmpty(t, iso.StickyError)
	require.False(t, a.IsFinalized())
}

func TestStackOverflowLowersAndRestoresLimit(t *testing.T) {
	iso := isolate.New()
	iso.SetStackLimit(1000)
	require.EqualValues(t, 1000, iso.StackLimit())

	iso.EnterStackOverflow(200)
	require.EqualValues(t, 800, iso.StackLimit())

	iso.ExitStackOverflow()
	require.EqualValues(t, 1000, iso.StackLimit())
}

func TestPortSendAndDeliver(t *testing.T) {
	iso := isolate.New()
	port := iso.OpenPort()
	require.Equal(t, 1, iso.ActivePortCount())

	require.NoError(t, iso.Send(port, "hello"))

	var received []interface{}
	iso.DeliverPending(func(m isolate.Message) {
		received = append(received, m.Payload)
	})
	require.Equal(t, []interface{}{"hello"}, received)

	iso.ClosePort(port)
	require.Equal(t, 0, iso.ActivePortCount())
}
