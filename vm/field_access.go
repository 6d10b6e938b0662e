package vm

import "sort"

// fieldType classifies a field for accessor selection. References split
// into unchecked (Object, no cast needed) and checked (anything narrower).
type fieldType uint8

const (
	ftUncheckedRef fieldType = iota
	ftCheckedRef
	ftBoolean
	ftByte
	ftShort
	ftChar
	ftInt
	ftLong
	ftFloat
	ftDouble

	fieldTypeLimit
)

var fieldTypeNames = [fieldTypeLimit]string{
	"Reference", "ReferenceChecked", "Boolean", "Byte", "Short", "Char", "Int", "Long", "Float", "Double",
}

func fieldTypeOf(c *Class) fieldType {
	switch c.kind {
	case KindBoolean:
		return ftBoolean
	case KindByte:
		return ftByte
	case KindShort:
		return ftShort
	case KindChar:
		return ftChar
	case KindInt:
		return ftInt
	case KindLong:
		return ftLong
	case KindFloat:
		return ftFloat
	case KindDouble:
		return ftDouble
	}
	if c == ObjectClass {
		return ftUncheckedRef
	}
	return ftCheckedRef
}

func (ft fieldType) basicType() BasicType {
	switch ft {
	case ftUncheckedRef, ftCheckedRef:
		return LType
	case ftLong:
		return JType
	case ftFloat:
		return FType
	case ftDouble:
		return DType
	}
	return IType
}

// fieldAccessor identifies one prepared field-access shape: the cross of
// {get,put} x {field,static} x {plain,volatile} x {init barrier} with the
// field type.
type fieldAccessor struct {
	put      bool
	static   bool
	volatile bool
	init     bool // static only
	ft       fieldType
}

// name renders the accessor as used in traces, for example
// "getStaticIntVolatileInit" or "putReferenceChecked".
func (a fieldAccessor) name() string {
	s := "get"
	if a.put {
		s = "put"
	}
	if a.static {
		s += "Static"
	}
	s += fieldTypeNames[a.ft]
	if a.volatile {
		s += "Volatile"
	}
	if a.init {
		s += "Init"
	}
	return s
}

// accessorFor selects the accessor for a resolved field reference.
func accessorFor(ref *MemberRef, needsInit bool) fieldAccessor {
	return fieldAccessor{
		put:      ref.Kind.IsSetter(),
		static:   ref.Kind.IsStatic(),
		volatile: ref.IsVolatile(),
		init:     needsInit && ref.Kind.IsStatic(),
		ft:       fieldTypeOf(ref.ftype),
	}
}

// fieldAccessors indexes every valid accessor by name, with its primitive.
var fieldAccessors = func() map[string]fieldAccessor {
	out := make(map[string]fieldAccessor)
	for _, put := range []bool{false, true} {
		for _, static := range []bool{false, true} {
			for _, volatile := range []bool{false, true} {
				for _, init := range []bool{false, true} {
					if init && !static {
						continue
					}
					for ft := fieldType(0); ft < fieldTypeLimit; ft++ {
						a := fieldAccessor{put: put, static: static, volatile: volatile, init: init, ft: ft}
						out[a.name()] = a
					}
				}
			}
		}
	}
	return out
}()

// FieldAccessorNames lists every prepared field-access shape name, sorted.
func FieldAccessorNames() []string {
	names := make([]string, 0, len(fieldAccessors))
	for n := range fieldAccessors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// fieldPrimitives caches the get/put primitive per (put, volatile, type).
// The static and init flags only change how the base is computed.
var fieldPrimitives = func() (out [2][2][fieldTypeLimit]*NamedFunction) {
	for p := 0; p < 2; p++ {
		for v := 0; v < 2; v++ {
			for ft := fieldType(0); ft < fieldTypeLimit; ft++ {
				put, volatile := p == 1, v == 1
				name := "get"
				rtype := ft.basicType()
				if put {
					name = "put"
					rtype = VType
				}
				name += fieldTypeNames[ft]
				if volatile {
					name += "Volatile"
				}
				out[p][v][ft] = newNamedFunction(name, rtype, fieldAccessPrimitive(put, volatile, ft))
			}
		}
	}
	return out
}()

func (a fieldAccessor) primitive() *NamedFunction {
	p, v := 0, 0
	if a.put {
		p = 1
	}
	if a.volatile {
		v = 1
	}
	return fieldPrimitives[p][v][a.ft]
}

// fieldAccessPrimitive builds get(handle, base) or put(handle, base, value).
// The base is an *Object for instance fields and the owning *Class for
// statics.
func fieldAccessPrimitive(put, volatile bool, ft fieldType) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		mh, err := asHandle(args[0])
		if err != nil {
			return nil, err
		}
		f := mh.member.field
		if put {
			v, err := fromBasicValue(args[2], f.Type)
			if err != nil {
				return nil, err
			}
			if ft == ftCheckedRef {
				if v, err = checkCast(v, f.Type); err != nil {
					return nil, err
				}
			}
			switch base := args[1].(type) {
			case *Object:
				if volatile {
					base.SetVolatile(f.slot, v)
				} else {
					base.Set(f.slot, v)
				}
			case *Class:
				base.putStatic(f.slot, v)
			}
			return nil, nil
		}
		var v any
		switch base := args[1].(type) {
		case *Object:
			if volatile {
				v = base.GetVolatile(f.slot)
			} else {
				v = base.Get(f.slot)
			}
		case *Class:
			v = base.getStatic(f.slot)
		}
		if ft == ftCheckedRef && v != nil {
			if _, err := checkCast(v, f.Type); err != nil {
				return nil, err
			}
		}
		return toBasicValue(v, ft.basicType())
	}
}
