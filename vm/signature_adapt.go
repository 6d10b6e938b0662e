package vm

import "strconv"

// ---------------------------------------------------------------------------
// Adaptability
// ---------------------------------------------------------------------------

// IsAdaptableTo reports whether a handle of signature s can be adapted to
// be called as declared. Arguments flow from the declared parameter types
// into s's parameter types; the result flows from s's return type into the
// declared return type. Checks that need a runtime test (casts, unboxing)
// are allowed here and performed by the adapter.
func (s *Signature) IsAdaptableTo(declared *Signature) bool {
	if s == declared {
		return true
	}
	if len(s.ptypes) != len(declared.ptypes) {
		return false
	}
	for i, p := range s.ptypes {
		if !canConvert(declared.ptypes[i], p) {
			return false
		}
	}
	return canConvertReturn(s.rtype, declared.rtype)
}

// IsViewableAs reports whether s can be reinterpreted as declared without
// any conversion code: every declared parameter is assignable to the
// corresponding parameter of s, and s's return is assignable to the
// declared return.
func (s *Signature) IsViewableAs(declared *Signature) bool {
	if s == declared {
		return true
	}
	if len(s.ptypes) != len(declared.ptypes) || s.Erase() != declared.Erase() {
		return false
	}
	for i, p := range s.ptypes {
		if conversionFor(declared.ptypes[i], p) != convNone {
			return false
		}
	}
	return conversionFor(s.rtype, declared.rtype) == convNone
}

func canConvertReturn(src, dst *Class) bool {
	if dst == VoidClass {
		return true
	}
	return canConvert(src, dst)
}

// canConvert is the per-value conversion rule table:
//
//	primitive -> primitive  widening only
//	primitive -> reference  reference is a supertype of the wrapper
//	reference -> primitive  reference is a wrapper (or a supertype of one)
//	                        whose primitive widens to the target
//	reference -> reference  always (runtime cast)
//
// A void source converts to anything as the zero value.
func canConvert(src, dst *Class) bool {
	if src == dst || src == ObjectClass || dst == ObjectClass {
		return true
	}
	if src.IsPrimitive() {
		if src == VoidClass {
			return true
		}
		if dst.IsPrimitive() {
			return CanWiden(src, dst)
		}
		return CanBox(src, dst)
	}
	if dst.IsPrimitive() {
		if dst == VoidClass {
			return true
		}
		return CanUnbox(src, dst)
	}
	return true
}

// CanWiden reports whether primitive src widens to primitive dst.
func CanWiden(src, dst *Class) bool {
	if !src.IsPrimitive() || !dst.IsPrimitive() || src == VoidClass || dst == VoidClass {
		return false
	}
	return canWidenKind(src.kind, dst.kind)
}

// CanBox reports whether primitive src boxes into a value assignable to dst.
func CanBox(src, dst *Class) bool {
	w := src.WrapperClass()
	return w != nil && dst.IsAssignableFrom(w)
}

// CanUnbox reports whether a reference of type src may unbox into dst.
func CanUnbox(src, dst *Class) bool {
	if dst.WrapperClass() == nil {
		return false
	}
	if src.IsAssignableFrom(dst.WrapperClass()) {
		return true
	}
	if p := src.Wraps(); p != nil {
		return CanWiden(p, dst)
	}
	return false
}

// conversion names the code an adapter needs to move a value of one type
// into a slot of another.
type conversion uint8

const (
	convNone   conversion = iota // identical or a reference upcast
	convCast                     // reference downcast, checked at run time
	convWiden                    // primitive widening
	convBox                      // primitive to reference
	convUnbox                    // reference to primitive, may widen
	convZero                     // void to value
	convDrop                     // value to void
)

func (c conversion) String() string {
	switch c {
	case convNone:
		return "none"
	case convCast:
		return "cast"
	case convWiden:
		return "widen"
	case convBox:
		return "box"
	case convUnbox:
		return "unbox"
	case convZero:
		return "zero"
	case convDrop:
		return "drop"
	}
	return "conversion(" + strconv.Itoa(int(c)) + ")"
}

// conversionFor classifies the conversion from src to dst. It assumes
// canConvert(src, dst) holds.
func conversionFor(src, dst *Class) conversion {
	switch {
	case src == dst:
		return convNone
	case dst == VoidClass:
		return convDrop
	case src == VoidClass:
		return convZero
	case src.IsPrimitive() && dst.IsPrimitive():
		if BasicTypeOf(src) == BasicTypeOf(dst) {
			return convNone
		}
		return convWiden
	case src.IsPrimitive():
		return convBox
	case dst.IsPrimitive():
		return convUnbox
	case dst.IsAssignableFrom(src):
		return convNone
	}
	return convCast
}

// ---------------------------------------------------------------------------
// Variable arity shapes
// ---------------------------------------------------------------------------

// SpreadTarget derives the signature a spreader calls: the array parameter
// at pos is replaced by count parameters of type elem.
func (s *Signature) SpreadTarget(pos, count int, elem *Class) (*Signature, error) {
	if err := s.checkIndex(pos, len(s.ptypes)-1); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &IllegalArgumentError{Msg: "negative spread count " + strconv.Itoa(count)}
	}
	if arr := s.ptypes[pos]; !arr.IsArray() {
		return nil, &IllegalArgumentError{Msg: "parameter " + strconv.Itoa(pos) + " of " + s.Descriptor() + " is not an array"}
	}
	ps := make([]*Class, 0, len(s.ptypes)-1+count)
	ps = append(ps, s.ptypes[:pos]...)
	for i := 0; i < count; i++ {
		ps = append(ps, elem)
	}
	ps = append(ps, s.ptypes[pos+1:]...)
	return Intern(s.rtype, ps...)
}

// CollectTarget derives the signature a collector calls: the count
// parameters starting at pos are replaced by a single elem[] parameter.
func (s *Signature) CollectTarget(pos, count int, elem *Class) (*Signature, error) {
	if count < 0 || pos < 0 || pos+count > len(s.ptypes) {
		return nil, &IllegalArgumentError{Msg: "bad collect range at " + strconv.Itoa(pos) +
			" of " + strconv.Itoa(count) + " for " + s.Descriptor()}
	}
	ps := make([]*Class, 0, len(s.ptypes)-count+1)
	ps = append(ps, s.ptypes[:pos]...)
	ps = append(ps, ArrayOf(elem))
	ps = append(ps, s.ptypes[pos+count:]...)
	return Intern(s.rtype, ps...)
}
