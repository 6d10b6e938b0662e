package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Runtime values
// ---------------------------------------------------------------------------
//
// Values flowing through method handles are plain Go values:
//   - primitives: bool, int8 (byte), int16 (short), uint16 (char), int32,
//     int64, float32, float64
//   - references: nil (null), string, *Object, *Boxed, *Array, *MethodHandle,
//     *CallSite, *Signature, *Class, *Caller, *MemberRef
//
// A raw Go primitive in a reference position is treated as its boxed form
// for type checks; Box produces an identity-carrying *Boxed.

// Object is an instance of a reference class.
type Object struct {
	class  *Class
	mu     sync.RWMutex
	fields []any
}

// NewObject allocates an instance with zeroed fields.
func NewObject(c *Class) *Object {
	o := &Object{class: c, fields: make([]any, c.InstanceSlots())}
	for cur := c; cur != nil; cur = cur.Super {
		for _, f := range cur.Fields() {
			if !f.IsStatic() {
				o.fields[f.slot] = zeroValueFor(f.Type)
			}
		}
	}
	return o
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// Get reads a field slot without synchronization.
func (o *Object) Get(slot int) any { return o.fields[slot] }

// Set writes a field slot without synchronization.
func (o *Object) Set(slot int, v any) { o.fields[slot] = v }

// GetVolatile reads a field slot with acquire semantics.
func (o *Object) GetVolatile(slot int) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fields[slot]
}

// SetVolatile writes a field slot with release semantics.
func (o *Object) SetVolatile(slot int, v any) {
	o.mu.Lock()
	o.fields[slot] = v
	o.mu.Unlock()
}

func (o *Object) String() string {
	return fmt.Sprintf("%s@%p", o.class.Name, o)
}

// Boxed is a wrapper-class instance around a primitive value. Boxes have
// identity: two boxes holding equal values are distinct unless they come
// from a canonical cache.
type Boxed struct {
	class *Class
	v     any
}

// Class returns the wrapper class.
func (b *Boxed) Class() *Class { return b.class }

// Value returns the wrapped primitive.
func (b *Boxed) Value() any { return b.v }

func (b *Boxed) String() string { return fmt.Sprint(b.v) }

// Small integers in [-128, 127] box to canonical instances.
const (
	intCacheLow  = -128
	intCacheHigh = 127
)

var intCache = func() [intCacheHigh - intCacheLow + 1]*Boxed {
	var cache [intCacheHigh - intCacheLow + 1]*Boxed
	for i := range cache {
		cache[i] = &Boxed{class: IntegerBoxClass, v: int32(i + intCacheLow)}
	}
	return cache
}()

// ValueOfInt boxes an int, returning the canonical instance for values in
// the small-integer cache range.
func ValueOfInt(v int32) *Boxed {
	if v >= intCacheLow && v <= intCacheHigh {
		return intCache[v-intCacheLow]
	}
	return &Boxed{class: IntegerBoxClass, v: v}
}

// NewInteger always allocates a fresh Integer box.
func NewInteger(v int32) *Boxed {
	return &Boxed{class: IntegerBoxClass, v: v}
}

// Box wraps a primitive value in its wrapper class. References are
// returned unchanged.
func Box(v any) any {
	switch x := v.(type) {
	case int32:
		return ValueOfInt(x)
	case bool, int8, int16, uint16, int64, float32, float64:
		return &Boxed{class: primitiveForKind(primitiveKindOf(x)).boxedAs, v: x}
	}
	return v
}

// Array is a fixed-length array instance.
type Array struct {
	class *Class
	Elems []any
}

// NewArray allocates an array of the given component class.
func NewArray(component *Class, n int) *Array {
	a := &Array{class: ArrayOf(component), Elems: make([]any, n)}
	if component.IsPrimitive() {
		z := zeroValueFor(component)
		for i := range a.Elems {
			a.Elems[i] = z
		}
	}
	return a
}

// Class returns the array class.
func (a *Array) Class() *Class { return a.class }

// Len returns the array length.
func (a *Array) Len() int { return len(a.Elems) }

// Caller is the lookup context handed to bootstrap routines: the class on
// whose behalf linking happens and the access modes it holds.
type Caller struct {
	Class *Class
	Modes AccessMode
}

// NewCaller creates a full-privilege caller context for a class.
func NewCaller(c *Class) *Caller {
	return &Caller{Class: c, Modes: AccessAll}
}

// ClassOf returns the runtime class of a value; nil for null.
func ClassOf(v any) *Class {
	switch x := v.(type) {
	case nil:
		return nil
	case *Object:
		return x.class
	case *Boxed:
		return x.class
	case *Array:
		return x.class
	case string:
		return StringClass
	case *MethodHandle:
		if x.species != nil {
			return x.species.carrier
		}
		return MethodHandleClass
	case *CallSite:
		return CallSiteClass
	case *Signature:
		return MethodTypeClass
	case *Class:
		return ClassClass
	case *Caller:
		return CallerClass
	case *MemberRef:
		return MemberRefClass
	case BootstrapCallInfo:
		return BootstrapCallInfoClass
	}
	if k := primitiveKindOf(v); k != KindReference {
		return primitiveForKind(k).boxedAs
	}
	return ObjectClass
}

// primitiveKindOf reports the primitive kind of a raw Go primitive, or
// KindReference for anything else.
func primitiveKindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBoolean
	case int8:
		return KindByte
	case int16:
		return KindShort
	case uint16:
		return KindChar
	case int32:
		return KindInt
	case int64:
		return KindLong
	case float32:
		return KindFloat
	case float64:
		return KindDouble
	}
	return KindReference
}

func describeValue(v any) string {
	if v == nil {
		return "null"
	}
	if k := primitiveKindOf(v); k != KindReference {
		return primitiveForKind(k).Name
	}
	return ClassOf(v).Name
}

// ---------------------------------------------------------------------------
// Primitive conversions
// ---------------------------------------------------------------------------

// canWidenKind is the primitive widening relation. Char widens to int and
// above but not to short, and nothing but char widens to char.
func canWidenKind(from, to Kind) bool {
	if from == to {
		return true
	}
	switch from {
	case KindByte:
		return to == KindShort || to == KindInt || to == KindLong || to == KindFloat || to == KindDouble
	case KindShort, KindChar:
		return to == KindInt || to == KindLong || to == KindFloat || to == KindDouble
	case KindInt:
		return to == KindLong || to == KindFloat || to == KindDouble
	case KindLong:
		return to == KindFloat || to == KindDouble
	case KindFloat:
		return to == KindDouble
	}
	return false
}

// widenPrimitive converts a raw primitive to the target primitive kind.
// Values coming from basic-typed code may be int32 where a narrower kind
// is declared; those are narrowed back.
func widenPrimitive(v any, to *Class) (any, error) {
	if to.kind == KindVoid {
		return nil, nil
	}
	switch x := v.(type) {
	case bool:
		switch to.kind {
		case KindBoolean:
			return x, nil
		}
	case int8:
		return convertInteger(int64(x), to)
	case int16:
		return convertInteger(int64(x), to)
	case uint16:
		return convertInteger(int64(x), to)
	case int32:
		if to.kind == KindBoolean {
			return x&1 != 0, nil
		}
		return convertInteger(int64(x), to)
	case int64:
		switch to.kind {
		case KindLong:
			return x, nil
		case KindFloat:
			return float32(x), nil
		case KindDouble:
			return float64(x), nil
		}
	case float32:
		switch to.kind {
		case KindFloat:
			return x, nil
		case KindDouble:
			return float64(x), nil
		}
	case float64:
		if to.kind == KindDouble {
			return x, nil
		}
	}
	return nil, &ClassCastError{From: describeValue(v), To: to.Name}
}

func convertInteger(x int64, to *Class) (any, error) {
	switch to.kind {
	case KindByte:
		return int8(x), nil
	case KindShort:
		return int16(x), nil
	case KindChar:
		return uint16(x), nil
	case KindInt:
		return int32(x), nil
	case KindLong:
		return x, nil
	case KindFloat:
		return float32(x), nil
	case KindDouble:
		return float64(x), nil
	}
	return nil, &ClassCastError{From: "int", To: to.Name}
}

// unboxTo unwraps a reference to the target primitive, applying widening.
// A null reference fails with NullPointerError.
func unboxTo(v any, to *Class) (any, error) {
	if v == nil {
		return nil, &NullPointerError{What: "unboxing to " + to.Name}
	}
	raw := v
	if b, ok := v.(*Boxed); ok {
		raw = b.v
	}
	k := primitiveKindOf(raw)
	if k == KindReference || !canWidenKind(k, to.kind) {
		return nil, &ClassCastError{From: describeValue(v), To: to.Name}
	}
	return widenPrimitive(raw, to)
}

// boxAs boxes a primitive whose declared class is from.
func boxAs(v any, from *Class) (any, error) {
	if _, ok := v.(*Boxed); ok {
		return v, nil
	}
	p, err := widenPrimitive(v, from)
	if err != nil {
		return nil, err
	}
	return Box(p), nil
}

// checkCast verifies v is null or an instance of c.
func checkCast(v any, c *Class) (any, error) {
	if v == nil || c == ObjectClass {
		return v, nil
	}
	if c.IsInstance(v) {
		return v, nil
	}
	return nil, &ClassCastError{From: describeValue(v), To: c.Name}
}
