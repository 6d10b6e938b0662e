package vm

import (
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Class images
// ---------------------------------------------------------------------------
//
// A ClassImage is the binary blob handed to ClassTable.DefineClass. The
// species generator emits one per carrier type; the ahead-of-time archive
// stores them verbatim. Images are CBOR in canonical mode, so equal images
// encode to identical bytes.

// Carrier method operations.
const (
	OpInit   = "init"   // constructor storing every field
	OpMake   = "make"   // static factory
	OpGet    = "get"    // field getter
	OpExtend = "extend" // factory of the species with one more field
)

// ClassImage describes a generated class.
type ClassImage struct {
	Name    string        `cbor:"1,keyasint"`
	Super   string        `cbor:"2,keyasint"`
	Species string        `cbor:"3,keyasint,omitempty"`
	Fields  []FieldImage  `cbor:"4,keyasint"`
	Methods []MethodImage `cbor:"5,keyasint"`
}

// FieldImage is one field: its name and basic type character.
type FieldImage struct {
	Name string `cbor:"1,keyasint"`
	Type string `cbor:"2,keyasint"`
}

// MethodImage is one method. Arg is the field index for getters; Type is
// the added basic type for extenders.
type MethodImage struct {
	Name string `cbor:"1,keyasint"`
	Op   string `cbor:"2,keyasint"`
	Arg  int    `cbor:"3,keyasint,omitempty"`
	Type string `cbor:"4,keyasint,omitempty"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// EncodeClassImage serializes an image to canonical CBOR.
func EncodeClassImage(img *ClassImage) ([]byte, error) {
	return imageEncMode.Marshal(img)
}

// DecodeClassImage deserializes an image.
func DecodeClassImage(data []byte) (*ClassImage, error) {
	var img ClassImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal class image: %w", err)
	}
	return &img, nil
}

// speciesImage lays out the carrier of a species: one field per key
// element in key order, a constructor, a factory, a getter per field and
// an extender per argument basic type.
func speciesImage(name, super, key string, types []BasicType) *ClassImage {
	img := &ClassImage{Name: name, Super: super, Species: key}
	for i, t := range types {
		img.Fields = append(img.Fields, FieldImage{Name: speciesFieldName(t, i), Type: string(t.Char())})
	}
	img.Methods = append(img.Methods,
		MethodImage{Name: ConstructorName, Op: OpInit},
		MethodImage{Name: "make", Op: OpMake},
	)
	for i, t := range types {
		img.Methods = append(img.Methods, MethodImage{Name: "arg" + speciesFieldName(t, i), Op: OpGet, Arg: i})
	}
	for t := LType; t <= DType; t++ {
		img.Methods = append(img.Methods, MethodImage{Name: "extend" + t.String(), Op: OpExtend, Type: string(t.Char())})
	}
	return img
}

// speciesFieldName is the mechanical field name of key element i.
func speciesFieldName(t BasicType, i int) string {
	return string(t.Char()) + strconv.Itoa(i)
}

// linkImage creates the class described by img and binds its methods to
// native code.
func linkImage(img *ClassImage, super *Class) (*Class, error) {
	c := NewClass(img.Name, super, ModPublic|ModFinal)
	ftypes := make([]*Class, len(img.Fields))
	for i, fi := range img.Fields {
		if len(fi.Type) != 1 {
			return nil, &LinkageError{Msg: "bad field type " + strconv.Quote(fi.Type) + " in " + img.Name}
		}
		t, err := BasicTypeForChar(fi.Type[0])
		if err != nil || t == VType {
			return nil, &LinkageError{Msg: "bad field type " + strconv.Quote(fi.Type) + " in " + img.Name}
		}
		ftypes[i] = t.Class()
		c.AddField(fi.Name, ftypes[i], ModFinal)
	}
	for _, mi := range img.Methods {
		if err := linkCarrierMethod(c, ftypes, mi); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// linkCarrierMethod binds one carrier method. Carrier instances are bound
// method handles; their fields live in the handle's bound slice in basic
// representation.
func linkCarrierMethod(c *Class, ftypes []*Class, mi MethodImage) error {
	withHandle := func(tail ...*Class) []*Class {
		return append([]*Class{MethodTypeClass, ObjectClass}, tail...)
	}
	switch mi.Op {
	case OpInit:
		sig, err := Intern(VoidClass, ftypes...)
		if err != nil {
			return err
		}
		n := len(ftypes)
		c.AddMethod(mi.Name, sig, ModPrivate, func(args []any) (any, error) {
			mh, err := asHandle(args[0])
			if err != nil {
				return nil, err
			}
			if len(args)-1 != n {
				return nil, &WrongMethodTypeError{Have: strconv.Itoa(len(args)-1) + " fields", Want: sig.Descriptor()}
			}
			mh.bound = append([]any(nil), args[1:]...)
			return nil, nil
		})

	case OpMake:
		sig, err := Intern(c, withHandle(ftypes...)...)
		if err != nil {
			return err
		}
		c.AddMethod(mi.Name, sig, ModStatic, func(args []any) (any, error) {
			return carrierMake(c, args)
		})

	case OpGet:
		if mi.Arg < 0 || mi.Arg >= len(ftypes) {
			return &LinkageError{Msg: "getter " + mi.Name + " of " + c.Name + " has no field " + strconv.Itoa(mi.Arg)}
		}
		sig, err := Intern(ftypes[mi.Arg])
		if err != nil {
			return err
		}
		i := mi.Arg
		c.AddMethod(mi.Name, sig, ModFinal, func(args []any) (any, error) {
			mh, err := asHandle(args[0])
			if err != nil {
				return nil, err
			}
			return mh.bound[i], nil
		})

	case OpExtend:
		if len(mi.Type) != 1 {
			return &LinkageError{Msg: "bad extender type in " + c.Name}
		}
		t, err := BasicTypeForChar(mi.Type[0])
		if err != nil || t == VType {
			return &LinkageError{Msg: "bad extender type " + strconv.Quote(mi.Type) + " in " + c.Name}
		}
		sig, err := Intern(BoundHandleClass, withHandle(t.Class())...)
		if err != nil {
			return err
		}
		c.AddMethod(mi.Name, sig, ModFinal, func(args []any) (any, error) {
			return carrierExtend(c, t, args)
		})

	default:
		return &LinkageError{Msg: "unknown carrier operation " + strconv.Quote(mi.Op) + " in " + c.Name}
	}
	return nil
}

// carrierMake is the factory: (type, form, fields...) => new carrier.
// The species record is read from the carrier's static slot; a carrier
// whose species has not been published yet cannot be instantiated.
func carrierMake(c *Class, args []any) (any, error) {
	sd := c.species.Load()
	if sd == nil {
		return nil, &LinkageError{Msg: "species of " + c.Name + " is not linked"}
	}
	typ, ok := args[0].(*Signature)
	if !ok {
		return nil, &ClassCastError{From: describeValue(args[0]), To: MethodTypeClass.Name}
	}
	form, ok := args[1].(*LambdaForm)
	if !ok {
		return nil, &ClassCastError{From: describeValue(args[1]), To: "LambdaForm"}
	}
	mh := newHandle(sd.rt, typ, form)
	mh.species = sd
	call := make([]any, 0, len(args)-1)
	call = append(call, mh)
	call = append(call, args[2:]...)
	if _, err := sd.ctor(call); err != nil {
		return nil, err
	}
	return mh, nil
}

// carrierExtend is an extender: receiver (type, form, value) => a carrier
// of the extended species holding the receiver's fields plus value.
func carrierExtend(c *Class, t BasicType, args []any) (any, error) {
	sd := c.species.Load()
	if sd == nil {
		return nil, &LinkageError{Msg: "species of " + c.Name + " is not linked"}
	}
	recv, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	ext, err := sd.Extend(t)
	if err != nil {
		return nil, err
	}
	call := make([]any, 0, len(recv.bound)+3)
	call = append(call, args[1], args[2])
	call = append(call, recv.bound...)
	call = append(call, args[3])
	return ext.factory(call)
}
