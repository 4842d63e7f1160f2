package store

import (
	"fmt"
	"sync"
)

// Collection is a handle to a named keyspace, opened by name and held until
// explicitly dropped or the owning engine closes.
// Dropping the collection invalidates every outstanding handle; using a
// dropped handle afterwards is a usage error (ErrorMissingCollection), not a
// panic.
type Collection struct {
	name string
	mgr  *CollectionManager
	gen  uint64
}

func (c *Collection) Name() string { return c.name }

// Valid reports whether the collection this handle refers to is still
// open — false once it (or the whole manager) has been dropped.
func (c *Collection) Valid() bool {
	return c.mgr.generationOf(c.name) == c.gen
}

// CollectionManager tracks the flat namespace of collections within one
// engine instance: unique, non-empty UTF-8 names plus the
// always-open default collection. Create/drop are serialized against each
// other with a single mutex; reads of other collections are not blocked by
// it, matching "Creation and drop are serialised with respect to each other
// but not with respect to reads/writes in other collections."
type CollectionManager struct {
	mu      sync.Mutex
	gens    map[string]uint64 // name -> generation; absent means not open
	lastGen uint64            // highest generation handed out by Open
}

func NewCollectionManager() *CollectionManager {
	return &CollectionManager{gens: map[string]uint64{DefaultCollection: 1}}
}

func (m *CollectionManager) generationOf(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[name]
}

// Open returns a handle for name, creating its bookkeeping entry if this is
// the first time it's been seen. The default collection always exists.
func (m *CollectionManager) Open(name string) (*Collection, error) {
	if name != DefaultCollection && name == "" {
		return nil, NewError(ErrorArgsWrong, "collection name must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[name]
	if !ok {
		// Never reuse a generation, so handles from before a Drop stay
		// invalid after name is opened again.
		m.lastGen++
		gen = m.lastGen + 1
		m.gens[name] = gen
	}
	return &Collection{name: name, mgr: m, gen: gen}, nil
}

// Drop invalidates every handle to name, recursively over its keys — the
// caller (the engine) is responsible for actually deleting the keys;
// Drop only removes the bookkeeping entry, so existing handles report
// Valid() == false afterwards (a later Open issues a new generation).
func (m *CollectionManager) Drop(name string) error {
	if name == DefaultCollection {
		return NewError(ErrorArgsWrong, "the default collection cannot be dropped")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[name]
	if !ok {
		return Wrap(ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	delete(m.gens, name)
	_ = gen
	return nil
}

// List returns every currently-open collection name, including the
// default.
func (m *CollectionManager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.gens))
	for name := range m.gens {
		names = append(names, name)
	}
	return names
}

// Require fails with ErrorMissingCollection unless name is currently open.
func (m *CollectionManager) Require(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gens[name]; !ok {
		return Wrap(ErrorMissingCollection, nil, fmt.Sprintf("collection %q does not exist", name))
	}
	return nil
}
