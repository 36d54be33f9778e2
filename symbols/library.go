package symbols

import (
	"fmt"
	"sync"
)

// EntryKind discriminates what a dictionary slot holds.
type EntryKind byte

const (
	EntryClass EntryKind = iota
	EntryFunction
	EntryField
	EntryPrefix
)

// Entry is one resolvable name inside a library's dictionary. Value is left
// as interface{} so that the classes/code packages can store their own
// concrete descriptor types here without this package importing them back.
type Entry struct {
	Name  *Symbol
	Kind  EntryKind
	Value interface{}
}

// dictionary is an open-addressing table of Entry, growing the same way the
// symbol table does (75% watermark, doubling).
type dictionary struct {
	buckets []*Entry
	count   int
}

func newDictionary() *dictionary {
	return &dictionary{buckets: make([]*Entry, initialTableSize)}
}

func (d *dictionary) lookup(name string) *Entry {
	if len(d.buckets) == 0 {
		return nil
	}
	mask := uint32(len(d.buckets) - 1)
	idx := hashString(name) & mask
	for {
		e := d.buckets[idx]
		if e == nil {
			return nil
		}
		if e.Name.Text() == name {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (d *dictionary) insert(e *Entry) {
	mask := uint32(len(d.buckets) - 1)
	idx := hashString(e.Name.Text()) & mask
	for d.buckets[idx] != nil {
		if d.buckets[idx].Name.Text() == e.Name.Text() {
			d.buckets[idx] = e // redeclaration replaces in place
			return
		}
		idx = (idx + 1) & mask
	}
	d.buckets[idx] = e
	d.count++
	if d.count*loadFactorDenominator > len(d.buckets)*loadFactorNumerator {
		d.grow()
	}
}

func (d *dictionary) grow() {
	old := d.buckets
	d.buckets = make([]*Entry, len(old)*2)
	oldCount := d.count
	d.count = 0
	for _, e := range old {
		if e != nil {
			d.insert(e)
		}
	}
	d.count = oldCount
}

func (d *dictionary) all() []*Entry {
	out := make([]*Entry, 0, d.count)
	for _, e := range d.buckets {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Library mirrors a compiled library/script unit: a URL-identified namespace
// with its own dictionary of classes/functions/fields/prefixes, an import
// list, and (optionally) a set of anonymous classes generated while
// compiling it.
type Library struct {
	mu sync.RWMutex

	URL        *Symbol
	Name       *Symbol
	PrivateKey *Symbol

	dict *dictionary

	imports    []*Library
	anonymous  []interface{}
	nativeResolver func(functionName string, argCount int) (interface{}, bool)

	CorelibImported bool
	Loaded          bool

	// Next links libraries registered against the same isolate into a
	// singly linked list, mirroring the source's registration order.
	Next *Library
}

// NewLibrary creates an empty library identified by url.
func NewLibrary(url, name *Symbol) *Library {
	return &Library{
		URL:  url,
		Name: name,
		dict: newDictionary(),
	}
}

// Register adds or replaces a dictionary entry.
func (l *Library) Register(kind EntryKind, name *Symbol, value interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dict.insert(&Entry{Name: name, Kind: kind, Value: value})
}

// LookupLocalObject scans this library's dictionary only.
func (l *Library) LookupLocalObject(name string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.dict.lookup(name)
	return e, e != nil
}

// LookupLocalClass is LookupLocalObject filtered to class entries.
func (l *Library) LookupLocalClass(name string) (*Entry, bool) {
	e, ok := l.LookupLocalObject(name)
	if !ok || e.Kind != EntryClass {
		return nil, false
	}
	return e, true
}

// AddImport appends a library to this library's import list, in declaration
// order.
func (l *Library) AddImport(imported *Library) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.imports = append(l.imports, imported)
}

// LookupImport performs a linear scan of imports by URL.
func (l *Library) LookupImport(url string) (*Library, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, imp := range l.imports {
		if imp.URL.Text() == url {
			return imp, true
		}
	}
	return nil, false
}

// LookupObject looks locally first, then through each import in declaration
// order.
func (l *Library) LookupObject(name string) (*Entry, bool) {
	if e, ok := l.LookupLocalObject(name); ok {
		return e, true
	}
	l.mu.RLock()
	imports := append([]*Library(nil), l.imports...)
	l.mu.RUnlock()
	for _, imp := range imports {
		if e, ok := imp.LookupLocalObject(name); ok {
			return e, true
		}
	}
	return nil, false
}

// LookupClass is LookupObject filtered to class entries.
func (l *Library) LookupClass(name string) (*Entry, bool) {
	e, ok := l.LookupObject(name)
	if !ok || e.Kind != EntryClass {
		return nil, false
	}
	return e, true
}

// AddAnonymousClass records a class generated while compiling this library
// (e.g. a closure's signature class) so it can be visited/finalized.
func (l *Library) AddAnonymousClass(class interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.anonymous = append(l.anonymous, class)
}

// AnonymousClasses returns a copy of the anonymous-class list.
func (l *Library) AnonymousClasses() []interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]interface{}, len(l.anonymous))
	copy(out, l.anonymous)
	return out
}

// SetNativeResolver installs the native-entry resolver used by `native`
// function bodies in this library.
func (l *Library) SetNativeResolver(resolver func(functionName string, argCount int) (interface{}, bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nativeResolver = resolver
}

// ResolveNative looks up a native entry point for a `native` function.
func (l *Library) ResolveNative(functionName string, argCount int) (interface{}, bool) {
	l.mu.RLock()
	resolver := l.nativeResolver
	l.mu.RUnlock()
	if resolver == nil {
		return nil, false
	}
	return resolver(functionName, argCount)
}

// Registry owns every library known to an isolate, threaded as a linked
// list (mirroring the source) and indexed by URL for fast lookup.
type Registry struct {
	mu    sync.RWMutex
	byURL map[string]*Library
	head  *Library
	tail  *Library
}

// NewRegistry creates an empty library registry.
func NewRegistry() *Registry {
	return &Registry{byURL: make(map[string]*Library)}
}

// Add registers lib, appending it to the linked list and the URL index.
func (r *Registry) Add(lib *Library) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lib.URL.Text()
	if _, exists := r.byURL[key]; exists {
		return fmt.Errorf("library already registered: %s", key)
	}
	r.byURL[key] = lib
	if r.head == nil {
		r.head = lib
		r.tail = lib
	} else {
		r.tail.Next = lib
		r.tail = lib
	}
	return nil
}

// Lookup finds a library by its URL.
func (r *Registry) Lookup(url string) (*Library, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lib, ok := r.byURL[url]
	return lib, ok
}

// All returns every registered library in registration order.
func (r *Registry) All() []*Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Library, 0, len(r.byURL))
	for lib := r.head; lib != nil; lib = lib.Next {
		out = append(out, lib)
	}
	return out
}
