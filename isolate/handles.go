package isolate

import "github.com/coreruntime/vmcore/heap"

// HandleKind distinguishes the three handle flavors described in §4.1.
type HandleKind byte

const (
	ScopedHandle HandleKind = iota
	ZoneHandle
	PersistentHandle
)

// Handle is a one-word slot a GC can scan: every heap reference native
// runtime code holds across a safepoint must sit in one of these instead of
// a bare pointer.
type Handle struct {
	Kind HandleKind
	Ref  heap.Reference
}

// HandleScope owns a list of scoped handles allocated since it was entered;
// they become invalid (conceptually collected) when the scope exits. Zone
// handles are not recorded by the scope or by any Zone; persistent handles
// outlive any scope and are tracked separately by the isolate.
type HandleScope struct {
	isolate *Isolate
	scoped  []*Handle
}

// enterHandleScope pushes a new scope onto the isolate's handle-scope stack.
func (iso *Isolate) enterHandleScope() *HandleScope {
	s := &HandleScope{isolate: iso}
	iso.handleScopes = append(iso.handleScopes, s)
	return s
}

// EnterHandleScope pushes a new scope and returns it; call Exit (or use
// WithHandleScope) to pop it again.
func (iso *Isolate) EnterHandleScope() *HandleScope {
	return iso.enterHandleScope()
}

// Exit pops this scope off the isolate's stack. Scopes must be exited in
// LIFO order; exiting anything but the innermost scope is a usage error the
// caller is responsible for avoiding (mirroring the RAII discipline in
// §5 "Scoped acquisition").
func (s *HandleScope) Exit() {
	iso := s.isolate
	if len(iso.handleScopes) == 0 || iso.handleScopes[len(iso.handleScopes)-1] != s {
		return
	}
	iso.handleScopes = iso.handleScopes[:len(iso.handleScopes)-1]
}

// NewHandle allocates a handle of the given kind. A ScopedHandle is recorded
// in s; any other kind is returned without being recorded in s or in a zone.
// Allocating a handle while the isolate's heap is in a no-handle scope is a
// violation.
func (s *HandleScope) NewHandle(kind HandleKind, ref heap.Reference) *Handle {
	iso := s.isolate
	if iso.heap.InNoHandleScope() {
		panic("isolate: handle allocated inside a no-handle scope")
	}
	h := &Handle{Kind: kind, Ref: ref}
	if kind == ScopedHandle {
		s.scoped = append(s.scoped, h)
	}
	return h
}

// WithHandleScope runs fn with a fresh handle scope entered, exiting it
// (in LIFO order) regardless of how fn returns.
func (iso *Isolate) WithHandleScope(fn func(s *HandleScope)) {
	s := iso.EnterHandleScope()
	defer s.Exit()
	fn(s)
}

// NewPersistentHandle allocates a handle that outlives any scope; the
// isolate itself owns its lifetime until explicitly deleted.
func (iso *Isolate) NewPersistentHandle(ref heap.Reference) *Handle {
	h := &Handle{Kind: PersistentHandle, Ref: ref}
	iso.persistentHandles = append(iso.persistentHandles, h)
	return h
}

// DeletePersistentHandle removes h from the isolate's persistent-handle
// region.
func (iso *Isolate) DeletePersistentHandle(h *Handle) {
	for i, cur := range iso.persistentHandles {
		if cur == h {
			iso.persistentHandles = append(iso.persistentHandles[:i], iso.persistentHandles[i+1:]...)
			return
		}
	}
}
