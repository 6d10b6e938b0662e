package vm

import "sync"

// VTable holds the virtual dispatch table for a class.
//
// Methods are keyed by name and descriptor. Inheritance is handled by
// walking the parent chain when a method is not found locally; interface
// default methods are consulted last.
type VTable struct {
	mu      sync.RWMutex
	class   *Class
	parent  *VTable
	methods map[string]*Method
}

// NewVTable creates a new vtable for a class.
func NewVTable(class *Class, parent *VTable) *VTable {
	return &VTable{
		class:   class,
		parent:  parent,
		methods: make(map[string]*Method),
	}
}

// Lookup finds the method selected for a virtual call with the given key,
// walking the inheritance chain. Returns nil if no method is found.
func (vt *VTable) Lookup(key string) *Method {
	for v := vt; v != nil; v = v.parent {
		if m := v.LookupLocal(key); m != nil {
			return m
		}
	}
	for v := vt; v != nil; v = v.parent {
		for _, iface := range v.class.Interfaces {
			if m := iface.vtable.Lookup(key); m != nil && m.Code != nil {
				return m
			}
		}
	}
	return nil
}

// LookupLocal finds a method in this vtable only.
func (vt *VTable) LookupLocal(key string) *Method {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.methods[key]
}

// AddMethod adds or replaces a method.
func (vt *VTable) AddMethod(m *Method) {
	vt.mu.Lock()
	vt.methods[m.key()] = m
	vt.mu.Unlock()
}

// Parent returns the parent vtable (for inheritance).
func (vt *VTable) Parent() *VTable {
	return vt.parent
}

// Class returns the class this vtable belongs to.
func (vt *VTable) Class() *Class {
	return vt.class
}

// MethodCount returns the number of locally defined methods.
func (vt *VTable) MethodCount() int {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return len(vt.methods)
}
