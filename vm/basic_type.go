package vm

import "fmt"

// BasicType is the reduced set of machine-level value categories used to
// share stub code between signatures: one generic reference type plus
// int/long/float/double, and void for results.
type BasicType uint8

const (
	LType BasicType = iota // reference
	IType                  // int, and every sub-word integer plus boolean
	JType                  // long
	FType                  // float
	DType                  // double
	VType                  // no value (results only)
)

// basicTypeLimit bounds arrays indexed by BasicType.
const basicTypeLimit = int(VType) + 1

// argTypeLimit bounds arrays indexed by the value-carrying basic types.
const argTypeLimit = int(DType) + 1

var basicTypeChars = [basicTypeLimit]byte{'L', 'I', 'J', 'F', 'D', 'V'}

// Char returns the one-letter tag for the type.
func (t BasicType) Char() byte {
	if int(t) < basicTypeLimit {
		return basicTypeChars[t]
	}
	return '?'
}

func (t BasicType) String() string {
	return string(t.Char())
}

// Slots returns the number of native argument slots a value of this type
// occupies. Long and double are wide.
func (t BasicType) Slots() int {
	switch t {
	case JType, DType:
		return 2
	case VType:
		return 0
	}
	return 1
}

// Class returns the canonical class for the basic type.
func (t BasicType) Class() *Class {
	switch t {
	case IType:
		return IntClass
	case JType:
		return LongClass
	case FType:
		return FloatClass
	case DType:
		return DoubleClass
	case VType:
		return VoidClass
	}
	return ObjectClass
}

// Zero returns the zero value carried by the basic type.
func (t BasicType) Zero() any {
	switch t {
	case IType:
		return int32(0)
	case JType:
		return int64(0)
	case FType:
		return float32(0)
	case DType:
		return float64(0)
	}
	return nil
}

// BasicTypeForChar maps a tag character back to its BasicType.
func BasicTypeForChar(c byte) (BasicType, error) {
	for i, ch := range basicTypeChars {
		if ch == c {
			return BasicType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown basic type tag %q", c)
}

// BasicTypeOf returns the basic type a class reduces to.
func BasicTypeOf(c *Class) BasicType {
	if c == nil {
		return LType
	}
	switch c.kind {
	case KindBoolean, KindByte, KindShort, KindChar, KindInt:
		return IType
	case KindLong:
		return JType
	case KindFloat:
		return FType
	case KindDouble:
		return DType
	case KindVoid:
		return VType
	}
	return LType
}

// BasicTypesString renders a tag string for a list of basic types.
func BasicTypesString(types []BasicType) string {
	b := make([]byte, len(types))
	for i, t := range types {
		b[i] = t.Char()
	}
	return string(b)
}

// ParseBasicTypes parses a tag string such as "LIJ". Whitespace between
// tags is ignored, so "L I" and "LI" name the same sequence.
func ParseBasicTypes(s string) ([]BasicType, error) {
	types := make([]BasicType, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			continue
		}
		t, err := BasicTypeForChar(c)
		if err != nil {
			return nil, err
		}
		if t == VType {
			return nil, fmt.Errorf("void tag not allowed in %q", s)
		}
		types = append(types, t)
	}
	return types, nil
}

// toBasicValue normalizes a value to the representation carried by the
// basic type: sub-word integers and booleans widen to int32.
func toBasicValue(v any, t BasicType) (any, error) {
	switch t {
	case LType:
		return v, nil
	case VType:
		return nil, nil
	}
	switch x := v.(type) {
	case *Boxed:
		return toBasicValue(x.v, t)
	case bool:
		if t == IType {
			if x {
				return int32(1), nil
			}
			return int32(0), nil
		}
	case int8:
		return widenTo(int64(x), t), nil
	case int16:
		return widenTo(int64(x), t), nil
	case uint16:
		return widenTo(int64(x), t), nil
	case int32:
		return widenTo(int64(x), t), nil
	case int64:
		if t == JType || t == FType || t == DType {
			return widenTo(x, t), nil
		}
	case float32:
		switch t {
		case FType:
			return x, nil
		case DType:
			return float64(x), nil
		}
	case float64:
		if t == DType {
			return x, nil
		}
	}
	return nil, &ClassCastError{From: describeValue(v), To: t.Class().Name}
}

func widenTo(x int64, t BasicType) any {
	switch t {
	case IType:
		return int32(x)
	case JType:
		return x
	case FType:
		return float32(x)
	case DType:
		return float64(x)
	}
	return x
}
