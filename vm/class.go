package vm

import (
	"strings"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Class: runtime type descriptor
// ---------------------------------------------------------------------------

// Kind distinguishes primitive classes from reference classes.
type Kind uint8

const (
	KindReference Kind = iota
	KindBoolean
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindVoid
)

// Modifiers are access and property bits for classes and members.
type Modifiers uint16

const (
	ModPublic    Modifiers = 0x0001
	ModPrivate   Modifiers = 0x0002
	ModProtected Modifiers = 0x0004
	ModStatic    Modifiers = 0x0008
	ModFinal     Modifiers = 0x0010
	ModVolatile  Modifiers = 0x0040
	ModVarargs   Modifiers = 0x0080
	ModInterface Modifiers = 0x0200
	ModAbstract  Modifiers = 0x0400
)

// Has reports whether every bit in m2 is set.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

func (m Modifiers) String() string {
	var parts []string
	names := []struct {
		bit  Modifiers
		name string
	}{
		{ModPublic, "public"}, {ModPrivate, "private"}, {ModProtected, "protected"},
		{ModStatic, "static"}, {ModFinal, "final"}, {ModVolatile, "volatile"},
		{ModVarargs, "varargs"}, {ModInterface, "interface"}, {ModAbstract, "abstract"},
	}
	for _, n := range names {
		if m.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// Class initialization states.
const (
	initNone int32 = iota
	initRunning
	initDone
	initFailed
)

var classIDs atomic.Uint32

// Class describes a primitive, reference or array type together with its
// members. Classes are created once and never destroyed.
type Class struct {
	id         uint32
	Name       string
	kind       Kind
	Super      *Class
	Interfaces []*Class
	Component  *Class
	Modifiers  Modifiers

	// Initializer runs once before the first static access.
	Initializer func() error

	mu      sync.RWMutex
	fields  []*Field
	methods []*Method
	vtable  *VTable
	nslots  int // instance field slots including inherited ones

	statics   []any
	staticsMu sync.RWMutex

	initState atomic.Int32
	initMu    sync.Mutex
	initErr   error

	wraps   *Class // wrapper classes: the primitive they box
	boxedAs *Class // primitive classes: their wrapper

	arrayOf atomic.Pointer[Class]

	// species is the carrier's static SpeciesData slot. Writers publish with
	// an atomic store after every field of the record is set.
	species atomic.Pointer[SpeciesData]
}

// NewClass creates a reference class. The class is not registered with any
// ClassTable until Define is called.
func NewClass(name string, super *Class, mods Modifiers, interfaces ...*Class) *Class {
	c := &Class{
		id:         classIDs.Add(1),
		Name:       name,
		kind:       KindReference,
		Super:      super,
		Interfaces: interfaces,
		Modifiers:  mods,
	}
	var parent *VTable
	if super != nil {
		parent = super.vtable
		c.nslots = super.nslots
	}
	c.vtable = NewVTable(c, parent)
	return c
}

// NewInterface creates an interface class.
func NewInterface(name string, supers ...*Class) *Class {
	return NewClass(name, nil, ModPublic|ModInterface|ModAbstract, supers...)
}

func newPrimitiveClass(name string, kind Kind) *Class {
	c := &Class{id: classIDs.Add(1), Name: name, kind: kind, Modifiers: ModPublic | ModFinal}
	c.initState.Store(initDone)
	return c
}

// ID returns the process-unique class identifier.
func (c *Class) ID() uint32 { return c.id }

// Kind returns the class kind.
func (c *Class) Kind() Kind { return c.kind }

// IsPrimitive reports whether the class is a primitive (including void).
func (c *Class) IsPrimitive() bool { return c.kind != KindReference }

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool { return c.Modifiers.Has(ModInterface) }

// IsArray reports whether the class is an array class.
func (c *Class) IsArray() bool { return c.Component != nil }

// Wraps returns the primitive class boxed by this wrapper class, or nil.
func (c *Class) Wraps() *Class { return c.wraps }

// WrapperClass returns the wrapper class of a primitive, or nil.
func (c *Class) WrapperClass() *Class { return c.boxedAs }

func (c *Class) String() string { return c.Name }

// ArrayOf returns the array class with component c, creating it on first use.
func ArrayOf(c *Class) *Class {
	if a := c.arrayOf.Load(); a != nil {
		return a
	}
	a := NewClass(c.Name+"[]", ObjectClass, ModPublic|ModFinal)
	a.Component = c
	a.initState.Store(initDone)
	if c.arrayOf.CompareAndSwap(nil, a) {
		return a
	}
	return c.arrayOf.Load()
}

// IsAssignableFrom reports whether a value of class other can be stored in
// a variable of class c without conversion.
func (c *Class) IsAssignableFrom(other *Class) bool {
	if c == other {
		return true
	}
	if other == nil || c.IsPrimitive() || other.IsPrimitive() {
		return false
	}
	if c == ObjectClass {
		return true
	}
	if c.IsArray() {
		return other.IsArray() && !c.Component.IsPrimitive() &&
			c.Component.IsAssignableFrom(other.Component)
	}
	for cur := other; cur != nil; cur = cur.Super {
		if cur == c {
			return true
		}
		if c.IsInterface() {
			for _, iface := range cur.Interfaces {
				if iface == c || c.IsAssignableFrom(iface) {
					return true
				}
			}
		}
	}
	return false
}

// IsInstance reports whether v is a non-null instance of c (or, for
// primitive classes, a value of exactly that primitive kind).
func (c *Class) IsInstance(v any) bool {
	if v == nil {
		return false
	}
	if c.IsPrimitive() {
		return primitiveKindOf(v) == c.kind
	}
	return c.IsAssignableFrom(ClassOf(v))
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// NativeFunc is the execution engine's invoke primitive for a resolved
// method. Instance methods receive the receiver as args[0].
type NativeFunc func(args []any) (any, error)

// Method is a resolved method definition.
type Method struct {
	Owner     *Class
	Name      string
	Sig       *Signature
	Modifiers Modifiers
	Code      NativeFunc
}

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool { return m.Modifiers.Has(ModStatic) }

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool { return m.Name == ConstructorName }

func (m *Method) key() string { return memberKey(m.Name, m.Sig.Descriptor()) }

// Field is a resolved field definition.
type Field struct {
	Owner     *Class
	Name      string
	Type      *Class
	Modifiers Modifiers
	slot      int
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool { return f.Modifiers.Has(ModStatic) }

// IsVolatile reports whether the field is volatile.
func (f *Field) IsVolatile() bool { return f.Modifiers.Has(ModVolatile) }

// Slot returns the storage slot of the field.
func (f *Field) Slot() int { return f.slot }

// ConstructorName is the member name of instance initializers.
const ConstructorName = "<init>"

func memberKey(name, desc string) string { return name + ":" + desc }

// AddField declares a field on the class and returns it.
func (c *Class) AddField(name string, typ *Class, mods Modifiers) *Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &Field{Owner: c, Name: name, Type: typ, Modifiers: mods}
	if mods.Has(ModStatic) {
		c.staticsMu.Lock()
		f.slot = len(c.statics)
		c.statics = append(c.statics, zeroValueFor(typ))
		c.staticsMu.Unlock()
	} else {
		f.slot = c.nslots
		c.nslots++
	}
	c.fields = append(c.fields, f)
	return f
}

// AddMethod declares a method on the class. Non-static, non-constructor
// methods are also entered in the class vtable.
func (c *Class) AddMethod(name string, sig *Signature, mods Modifiers, code NativeFunc) *Method {
	m := &Method{Owner: c, Name: name, Sig: sig, Modifiers: mods, Code: code}
	c.mu.Lock()
	c.methods = append(c.methods, m)
	c.mu.Unlock()
	if !m.IsStatic() && !m.IsConstructor() {
		c.vtable.AddMethod(m)
	}
	return m
}

// Fields returns the fields declared directly on the class.
func (c *Class) Fields() []*Field {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Methods returns the methods declared directly on the class.
func (c *Class) Methods() []*Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Method, len(c.methods))
	copy(out, c.methods)
	return out
}

// DeclaredMethod finds a method declared directly on c.
func (c *Class) DeclaredMethod(name string, sig *Signature) *Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.methods {
		if m.Name == name && m.Sig == sig {
			return m
		}
	}
	return nil
}

// DeclaredField finds a field declared directly on c.
func (c *Class) DeclaredField(name string) *Field {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindMethod searches c, its superclasses and then its interfaces.
func (c *Class) FindMethod(name string, sig *Signature) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, sig); m != nil {
			return m
		}
	}
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if m := iface.FindMethod(name, sig); m != nil {
				return m
			}
		}
	}
	return nil
}

// FindField searches c and its superclasses.
func (c *Class) FindField(name string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		if f := cur.DeclaredField(name); f != nil {
			return f
		}
	}
	return nil
}

// InstanceSlots returns the number of instance field slots.
func (c *Class) InstanceSlots() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nslots
}

// VTable returns the class dispatch table.
func (c *Class) VTable() *VTable { return c.vtable }

// ---------------------------------------------------------------------------
// Static initialization
// ---------------------------------------------------------------------------

// IsInitialized reports whether the static initializer has completed.
func (c *Class) IsInitialized() bool {
	return c.initState.Load() == initDone
}

// Initialize runs the static initializer (and those of superclasses) once.
// A failed initializer leaves the class permanently erroneous.
func (c *Class) Initialize() error {
	switch c.initState.Load() {
	case initDone:
		return nil
	case initFailed:
		return c.initFailure()
	}
	if c.Super != nil {
		if err := c.Super.Initialize(); err != nil {
			return err
		}
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	switch c.initState.Load() {
	case initDone:
		return nil
	case initFailed:
		return c.initErr
	}
	c.initState.Store(initRunning)
	if c.Initializer != nil {
		if err := c.Initializer(); err != nil {
			c.initErr = &InitializationError{Class: c.Name, Cause: err}
			c.initState.Store(initFailed)
			return c.initErr
		}
	}
	c.initState.Store(initDone)
	return nil
}

func (c *Class) initFailure() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initErr
}

// ---------------------------------------------------------------------------
// Static storage
// ---------------------------------------------------------------------------

func (c *Class) getStatic(slot int) any {
	c.staticsMu.RLock()
	defer c.staticsMu.RUnlock()
	return c.statics[slot]
}

func (c *Class) putStatic(slot int, v any) {
	c.staticsMu.Lock()
	c.statics[slot] = v
	c.staticsMu.Unlock()
}

// ---------------------------------------------------------------------------
// Bootstrap classes
// ---------------------------------------------------------------------------

var (
	VoidClass    = newPrimitiveClass("void", KindVoid)
	BooleanClass = newPrimitiveClass("boolean", KindBoolean)
	ByteClass    = newPrimitiveClass("byte", KindByte)
	ShortClass   = newPrimitiveClass("short", KindShort)
	CharClass    = newPrimitiveClass("char", KindChar)
	IntClass     = newPrimitiveClass("int", KindInt)
	LongClass    = newPrimitiveClass("long", KindLong)
	FloatClass   = newPrimitiveClass("float", KindFloat)
	DoubleClass  = newPrimitiveClass("double", KindDouble)

	ObjectClass     = bootClass("Object", nil)
	ComparableIface = bootInterface("Comparable")
	StringClass     = bootClass("String", ObjectClass, ComparableIface)
	NumberClass     = bootClass("Number", ObjectClass)

	BooleanBoxClass   = wrapper("Boolean", ObjectClass, BooleanClass)
	ByteBoxClass      = wrapper("Byte", NumberClass, ByteClass)
	ShortBoxClass     = wrapper("Short", NumberClass, ShortClass)
	CharacterBoxClass = wrapper("Character", ObjectClass, CharClass)
	IntegerBoxClass   = wrapper("Integer", NumberClass, IntClass)
	LongBoxClass      = wrapper("Long", NumberClass, LongClass)
	FloatBoxClass     = wrapper("Float", NumberClass, FloatClass)
	DoubleBoxClass    = wrapper("Double", NumberClass, DoubleClass)

	ClassClass             = bootClass("Class", ObjectClass)
	MethodHandleClass      = bootClass("MethodHandle", ObjectClass)
	BoundHandleClass       = bootClass("BoundHandle", MethodHandleClass)
	MethodTypeClass        = bootClass("MethodType", ObjectClass)
	CallSiteClass          = bootClass("CallSite", ObjectClass)
	CallerClass            = bootClass("Caller", ObjectClass)
	BootstrapCallInfoClass = bootInterface("BootstrapCallInfo")
	MemberRefClass         = bootClass("MemberRef", ObjectClass)

	ObjectArrayClass = ArrayOf(ObjectClass)
)

func bootClass(name string, super *Class, ifaces ...*Class) *Class {
	c := NewClass(name, super, ModPublic, ifaces...)
	c.initState.Store(initDone)
	return c
}

func bootInterface(name string) *Class {
	c := NewInterface(name)
	c.initState.Store(initDone)
	return c
}

func wrapper(name string, super, prim *Class) *Class {
	c := bootClass(name, super, ComparableIface)
	c.Modifiers |= ModFinal
	c.wraps = prim
	prim.boxedAs = c
	return c
}

// bootClasses lists every predefined class, registered into each new
// ClassTable.
func bootClasses() []*Class {
	return []*Class{
		VoidClass, BooleanClass, ByteClass, ShortClass, CharClass, IntClass,
		LongClass, FloatClass, DoubleClass,
		ObjectClass, ComparableIface, StringClass, NumberClass,
		BooleanBoxClass, ByteBoxClass, ShortBoxClass, CharacterBoxClass,
		IntegerBoxClass, LongBoxClass, FloatBoxClass, DoubleBoxClass,
		ClassClass, MethodHandleClass, BoundHandleClass, MethodTypeClass,
		CallSiteClass, CallerClass, BootstrapCallInfoClass, MemberRefClass,
		ObjectArrayClass,
	}
}

// primitiveForKind returns the primitive class of a kind.
func primitiveForKind(k Kind) *Class {
	switch k {
	case KindBoolean:
		return BooleanClass
	case KindByte:
		return ByteClass
	case KindShort:
		return ShortClass
	case KindChar:
		return CharClass
	case KindInt:
		return IntClass
	case KindLong:
		return LongClass
	case KindFloat:
		return FloatClass
	case KindDouble:
		return DoubleClass
	case KindVoid:
		return VoidClass
	}
	return nil
}

func zeroValueFor(c *Class) any {
	switch c.kind {
	case KindBoolean:
		return false
	case KindByte:
		return int8(0)
	case KindShort:
		return int16(0)
	case KindChar:
		return uint16(0)
	case KindInt:
		return int32(0)
	case KindLong:
		return int64(0)
	case KindFloat:
		return float32(0)
	case KindDouble:
		return float64(0)
	}
	return nil
}

// describeClass renders a class name for diagnostics, tolerating nil.
func describeClass(c *Class) string {
	if c == nil {
		return "null"
	}
	return c.Name
}
