package classes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreruntime/vmcore/classes"
)

func TestIsMoreSpecificThanTopIsUniversal(t *testing.T) {
	table, lib := newTestLibrary()
	c := declareClass(table, lib, "Thing")
	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{c}))

	pt := &classes.ParameterizedType{Class: c}
	require.True(t, classes.IsMoreSpecificThan(pt, classes.TopType))
	require.True(t, classes.IsMoreSpecificThan(classes.TopType, pt))
}

func TestIsMoreSpecificThanFollowsSuperclassChain(t *testing.T) {
	table, lib := newTestLibrary()
	animal := declareClass(table, lib, "Animal")
	dog := declareClass(table, lib, "Dog")
	dog.SuperclassName = table.NewSymbol("Animal")

	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{animal, dog}))

	dogType := &classes.ParameterizedType{Class: dog}
	animalType := &classes.ParameterizedType{Class: animal}

	require.True(t, classes.IsMoreSpecificThan(dogType, animalType))
	require.False(t, classes.IsMoreSpecificThan(animalType, dogType))
}

func TestIsMoreSpecificThanUnrelatedClassesFail(t *testing.T) {
	table, lib := newTestLibrary()
	a := declareClass(table, lib, "A")
	b := declareClass(table, lib, "B")

	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{a, b}))

	at := &classes.ParameterizedType{Class: a}
	bt := &classes.ParameterizedType{Class: b}
	require.False(t, classes.IsMoreSpecificThan(at, bt))
}

func TestIsMoreSpecificThanTypeParameterBound(t *testing.T) {
	table, lib := newTestLibrary()
	bound := declareClass(table, lib, "Comparable")
	f := classes.NewFinalizer()
	require.NoError(t, f.FinalizePendingClasses([]*classes.Class{bound}))

	owner := declareClass(table, lib, "Box")
	owner.TypeParameterNames = []string{"T"}
	owner.TypeParameterUpperBounds = []classes.Type{&classes.ParameterizedType{Class: bound}}

	tp := &classes.TypeParameter{Index: 0, Name: "T", Owner: owner}
	boundType := &classes.ParameterizedType{Class: bound}

	require.True(t, classes.IsMoreSpecificThan(tp, boundType))
}
