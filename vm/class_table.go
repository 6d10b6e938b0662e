package vm

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// ClassTable is a runtime's name to class registry. It plays the class
// loader: DefineClass accepts a binary class image and returns the loaded
// class.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class

	// Limit on defined (non-boot) classes; zero means unlimited.
	maxDefined int
	defined    atomic.Int32
}

// NewClassTable creates a table holding the boot classes. maxDefined caps
// the number of classes DefineClass will accept; zero disables the cap.
func NewClassTable(maxDefined int) *ClassTable {
	ct := &ClassTable{
		classes:    make(map[string]*Class),
		maxDefined: maxDefined,
	}
	for _, c := range bootClasses() {
		ct.classes[c.Name] = c
	}
	return ct
}

// Lookup returns the class registered under name.
func (ct *ClassTable) Lookup(name string) (*Class, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	c, ok := ct.classes[name]
	return c, ok
}

// Register adds an already constructed class. Registering a different class
// under a taken name fails.
func (ct *ClassTable) Register(c *Class) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if old, ok := ct.classes[c.Name]; ok && old != c {
		return &LinkageError{Msg: "duplicate class definition " + c.Name}
	}
	ct.classes[c.Name] = c
	return nil
}

// DefineClass decodes a class image, links it and registers the result.
// It fails with ResourceError once the table's class ceiling is reached and
// with LinkageError if the name is taken or does not match the image.
func (ct *ClassTable) DefineClass(name string, blob []byte) (*Class, error) {
	img, err := DecodeClassImage(blob)
	if err != nil {
		return nil, &LinkageError{Msg: "cannot define " + name, Cause: err}
	}
	if img.Name != name {
		return nil, &LinkageError{Msg: "class image names " + strconv.Quote(img.Name) + ", expected " + strconv.Quote(name)}
	}
	super, ok := ct.Lookup(img.Super)
	if !ok {
		return nil, &LinkageError{Msg: "superclass " + img.Super + " of " + name + " is not defined"}
	}
	if _, ok := ct.Lookup(name); ok {
		return nil, &LinkageError{Msg: "duplicate class definition " + name}
	}
	if ct.maxDefined > 0 && int(ct.defined.Load()) >= ct.maxDefined {
		return nil, &ResourceError{Resource: "class table", Limit: ct.maxDefined}
	}

	c, err := linkImage(img, super)
	if err != nil {
		return nil, err
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	if _, ok := ct.classes[name]; ok {
		return nil, &LinkageError{Msg: "duplicate class definition " + name}
	}
	if ct.maxDefined > 0 && int(ct.defined.Load()) >= ct.maxDefined {
		return nil, &ResourceError{Resource: "class table", Limit: ct.maxDefined}
	}
	ct.classes[name] = c
	ct.defined.Add(1)
	vmLog.Debugf("defined class %s (%d bytes)", name, len(blob))
	return c, nil
}

// Defined returns the number of classes added through DefineClass.
func (ct *ClassTable) Defined() int { return int(ct.defined.Load()) }

// Names returns every registered class name, sorted.
func (ct *ClassTable) Names() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	names := make([]string, 0, len(ct.classes))
	for n := range ct.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
