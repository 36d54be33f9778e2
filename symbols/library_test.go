package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryLookupOrder(t *testing.T) {
	table := NewTable()
	testLib := NewLibrary(table.NewSymbol("test:///testlib"), table.NewSymbol("TestLib"))
	coreLib := NewLibrary(table.NewSymbol("test:///core"), table.NewSymbol("Core"))

	coreLib.Register(EntryClass, table.NewSymbol("SBB"), "sbb-descriptor")
	testLib.AddImport(coreLib)

	_, ok := testLib.LookupLocalObject("SBB")
	assert.False(t, ok, "SBB is not declared locally")

	entry, ok := testLib.LookupObject("SBB")
	require.True(t, ok, "SBB should resolve through the import list")
	assert.Equal(t, "sbb-descriptor", entry.Value)
}

func TestLibraryRegistryRejectsDuplicateURL(t *testing.T) {
	table := NewTable()
	reg := NewRegistry()
	lib := NewLibrary(table.NewSymbol("dart:core"), table.NewSymbol("core"))

	require.NoError(t, reg.Add(lib))
	assert.Error(t, reg.Add(lib))
}

func TestLibraryImportLookupByURL(t *testing.T) {
	table := NewTable()
	lib := NewLibrary(table.NewSymbol("test:///a"), table.NewSymbol("A"))
	other := NewLibrary(table.NewSymbol("test:///b"), table.NewSymbol("B"))
	lib.AddImport(other)

	found, ok := lib.LookupImport("test:///b")
	require.True(t, ok)
	assert.Same(t, other, found)

	_, ok = lib.LookupImport("test:///missing")
	assert.False(t, ok)
}

func TestDictionaryRedeclarationReplaces(t *testing.T) {
	table := NewTable()
	lib := NewLibrary(table.NewSymbol("test:///redecl"), table.NewSymbol("Redecl"))
	name := table.NewSymbol("foo")

	lib.Register(EntryFunction, name, 1)
	lib.Register(EntryFunction, name, 2)

	entry, ok := lib.LookupLocalObject("foo")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Value)
}
