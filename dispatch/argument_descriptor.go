// Package dispatch implements the runtime-call pipeline: the fixed set of
// entries compiled code invokes via a stub, the inline-cache protocol, the
// per-class function cache fallback, and deoptimization.
package dispatch

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// NamedArgument is one (name, position) pair inside an ArgumentDescriptor.
type NamedArgument struct {
	Name     string
	Position int
}

// ArgumentDescriptor is the canonical, immutable call-site argument tuple
// from §4.5: total argument count, positional-argument count, and the
// named-argument tail sorted alphabetically by name.
type ArgumentDescriptor struct {
	TotalCount      int
	PositionalCount int
	Named           []NamedArgument
}

// key renders the descriptor's content as a string suitable for use as a
// canonicalization map key; two descriptors with identical contents produce
// identical keys.
func (d *ArgumentDescriptor) key() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(d.TotalCount))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(d.PositionalCount))
	for _, n := range d.Named {
		b.WriteByte(':')
		b.WriteString(n.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(n.Position))
	}
	return b.String()
}

// descriptorTable canonicalizes ArgumentDescriptor values so that two
// call sites built from identical contents share one allocation, per the
// "two argument descriptors with identical contents share storage"
// requirement.
type descriptorTable struct {
	mu    sync.Mutex
	byKey map[string]*ArgumentDescriptor
}

func newDescriptorTable() *descriptorTable {
	return &descriptorTable{byKey: make(map[string]*ArgumentDescriptor)}
}

// Canonicalize sorts named by name and returns the shared descriptor for
// the resulting contents, creating one on first use. Calling it twice with
// equivalent arguments is idempotent (returns the same pointer).
func (t *descriptorTable) Canonicalize(totalCount, positionalCount int, named []NamedArgument) *ArgumentDescriptor {
	sorted := append([]NamedArgument(nil), named...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	d := &ArgumentDescriptor{TotalCount: totalCount, PositionalCount: positionalCount, Named: sorted}
	key := d.key()

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.byKey[key]; ok {
		return existing
	}
	t.byKey[key] = d
	return d
}

// WithoutReceiver returns a copy of d with the total/positional counts
// reduced by one and every named position shifted down by one, the
// transformation applied when a leading receiver argument is dropped for
// closure dispatch.
func (d *ArgumentDescriptor) WithoutReceiver() *ArgumentDescriptor {
	named := make([]NamedArgument, len(d.Named))
	for i, n := range d.Named {
		named[i] = NamedArgument{Name: n.Name, Position: n.Position - 1}
	}
	return &ArgumentDescriptor{
		TotalCount:      d.TotalCount - 1,
		PositionalCount: d.PositionalCount - 1,
		Named:           named,
	}
}
