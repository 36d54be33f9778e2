package classes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/symbols"
)

func newTestLibrary() (*symbols.Table, *symbols.Library) {
	table := symbols.NewTable()
	url := table.NewSymbol("test:lib")
	lib := symbols.NewLibrary(url, table.NewSymbol("lib"))
	return table, lib
}

func declareClass(table *symbols.Table, lib *symbols.Library, name string) *classes.Class {
	c := classes.NewClass(table.NewSymbol(name), lib)
	lib.Register(symbols.EntryClass, c.Name, c)
	return c
}

func TestFinalizeIndependentClasses(t *testing.T) {
	table, lib := newTestLibrary()

	object := declareClass(table, lib, "Object")

	animal := declareClass(table, lib, "Animal")
	animal.SuperclassName = table.NewSymbol("Object")

	dog := declareClass(table, lib, "Dog")
	dog.SuperclassName = table.NewSymbol("Animal")

	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{object, animal, dog}))

	require.True(t, object.IsFinalized())
	require.True(t, animal.IsFinalized())
	require.True(t, dog.IsFinalized())
	require.Same(t, animal, dog.Superclass)
	require.Same(t, object, animal.Superclass)
}

func TestFinalizeDetectsCyclicSuperclass(t *testing.T) {
	table, lib := newTestLibrary()

	a := declareClass(table, lib, "A")
	b := declareClass(table, lib, "B")
	a.SuperclassName = table.NewSymbol("B")
	b.SuperclassName = table.NewSymbol("A")

	f := classes.NewFinalizer()
	err := f.FinalizePendingClasses([]*classes.Class{a, b})
	require.Error(t, err)

	ferr, ok := err.(*classes.FinalizationError)
	require.True(t, ok)
	require.Equal(t, classes.ErrCyclicSuperclass, ferr.Kind)
}

func TestFinalizeCrossLibraryClassResolution(t *testing.T) {
	table := symbols.NewTable()

	baseLib := symbols.NewLibrary(table.NewSymbol("test:base"), table.NewSymbol("base"))
	base := classes.NewClass(table.NewSymbol("Base"), baseLib)
	baseLib.Register(symbols.EntryClass, base.Name, base)

	mainLib := symbols.NewLibrary(table.NewSymbol("test:main"), table.NewSymbol("main"))
	mainLib.AddImport(baseLib)
	derived := classes.NewClass(table.NewSymbol("Derived"), mainLib)
	derived.SuperclassName = table.NewSymbol("Base")
	mainLib.Register(symbols.EntryClass, derived.Name, derived)

	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{base, derived}))

	require.True(t, derived.IsFinalized())
	require.Same(t, base, derived.Superclass)
}

func TestFinalizeRejectsNonConstSuperclassForConstClass(t *testing.T) {
	table, lib := newTestLibrary()

	plain := declareClass(table, lib, "Plain")

	constClass := declareClass(table, lib, "Const")
	constClass.SuperclassName = table.NewSymbol("Plain")
	constClass.IsConst = true

	f := classes.NewFinalizer()
	err := f.FinalizePendingClasses([]*classes.Class{plain, constClass})
	require.Error(t, err)
	ferr, ok := err.(*classes.FinalizationError)
	require.True(t, ok)
	require.Equal(t, classes.ErrNonConstSuperclass, ferr.Kind)
}

func TestFinalizeFieldOffsetsAccumulateAcrossSuperclass(t *testing.T) {
	table, lib := newTestLibrary()

	base := declareClass(table, lib, "Base")
	base.Fields = []*classes.Field{
		{Name: table.NewSymbol("x")},
		{Name: table.NewSymbol("y")},
	}

	derived := declareClass(table, lib, "Derived")
	derived.SuperclassName = table.NewSymbol("Base")
	derived.Fields = []*classes.Field{
		{Name: table.NewSymbol("z")},
	}

	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{base, derived}))

	require.Equal(t, 0, base.Fields[0].Offset)
	require.Equal(t, 1, base.Fields[1].Offset)
	require.Equal(t, 2, derived.Fields[0].Offset)
	require.Equal(t, 3, derived.NextFieldOffset)
}
