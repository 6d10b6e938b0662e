package vm

import "strings"

// RefKind is the access or invocation mode of a symbolic member reference.
// The numbering follows the constant-pool method-handle reference kinds.
type RefKind uint8

const (
	RefNone RefKind = iota
	RefGetField
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

var refKindNames = [...]string{
	RefNone:             "none",
	RefGetField:         "getField",
	RefGetStatic:        "getStatic",
	RefPutField:         "putField",
	RefPutStatic:        "putStatic",
	RefInvokeVirtual:    "invokeVirtual",
	RefInvokeStatic:     "invokeStatic",
	RefInvokeSpecial:    "invokeSpecial",
	RefNewInvokeSpecial: "newInvokeSpecial",
	RefInvokeInterface:  "invokeInterface",
}

func (k RefKind) String() string {
	if int(k) < len(refKindNames) {
		return refKindNames[k]
	}
	return "refKind?"
}

// IsField reports whether the kind accesses a field.
func (k RefKind) IsField() bool { return k >= RefGetField && k <= RefPutStatic }

// IsMethod reports whether the kind invokes a method or constructor.
func (k RefKind) IsMethod() bool { return k >= RefInvokeVirtual && k <= RefInvokeInterface }

// IsGetter reports whether the kind reads a field.
func (k RefKind) IsGetter() bool { return k == RefGetField || k == RefGetStatic }

// IsSetter reports whether the kind writes a field.
func (k RefKind) IsSetter() bool { return k == RefPutField || k == RefPutStatic }

// IsStatic reports whether the kind takes no receiver.
func (k RefKind) IsStatic() bool {
	return k == RefGetStatic || k == RefPutStatic || k == RefInvokeStatic
}

// refState is the resolution state of a MemberRef.
type refState uint8

const (
	refUnresolved refState = iota
	refResolved
	refFailed
)

// MemberRef is a symbolic reference to a field, method or constructor.
//
// Equality is symbolic: two references are equal when owner, kind, name and
// type agree, whether or not either is resolved. A MemberRef is filled in
// only by the Resolver, which always returns a new resolved (or failed)
// instance and leaves the original untouched. Kind-changing views such as
// AsSpecial are likewise new instances.
type MemberRef struct {
	Owner *Class
	Name  string
	Kind  RefKind

	sig   *Signature // methods and constructors
	ftype *Class     // fields

	mods   Modifiers
	state  refState
	err    error
	method *Method
	field  *Field

	// Receiver-class dispatch cache for virtual and interface kinds.
	cache *InlineCache
	// Class that a checked special invoke restricts receivers to.
	specialCaller *Class
}

// NewMethodRef creates an unresolved reference to a method or constructor.
func NewMethodRef(owner *Class, name string, sig *Signature, kind RefKind) (*MemberRef, error) {
	if owner == nil || sig == nil {
		return nil, &IllegalArgumentError{Msg: "method reference needs an owner and a signature"}
	}
	if !kind.IsMethod() {
		return nil, &IllegalArgumentError{Msg: kind.String() + " is not a method reference kind"}
	}
	if (kind == RefNewInvokeSpecial) != (name == ConstructorName) {
		return nil, &IllegalArgumentError{Msg: "constructor references must use " + ConstructorName + " with newInvokeSpecial"}
	}
	return &MemberRef{Owner: owner, Name: name, Kind: kind, sig: sig}, nil
}

// NewFieldRef creates an unresolved reference to a field.
func NewFieldRef(owner *Class, name string, ftype *Class, kind RefKind) (*MemberRef, error) {
	if owner == nil || ftype == nil {
		return nil, &IllegalArgumentError{Msg: "field reference needs an owner and a type"}
	}
	if !kind.IsField() {
		return nil, &IllegalArgumentError{Msg: kind.String() + " is not a field reference kind"}
	}
	if ftype == VoidClass {
		return nil, &IllegalArgumentError{Msg: "field " + name + " cannot be void"}
	}
	return &MemberRef{Owner: owner, Name: name, Kind: kind, ftype: ftype}, nil
}

// Signature returns the declared signature of a method reference, or nil
// for fields.
func (r *MemberRef) Signature() *Signature { return r.sig }

// FieldType returns the declared type of a field reference, or nil for
// methods.
func (r *MemberRef) FieldType() *Class { return r.ftype }

// Modifiers returns the modifier bits filled in by resolution.
func (r *MemberRef) Modifiers() Modifiers { return r.mods }

// IsResolved reports whether the reference has been resolved successfully.
func (r *MemberRef) IsResolved() bool { return r.state == refResolved }

// Err returns the resolution failure, if any.
func (r *MemberRef) Err() error { return r.err }

// Method returns the resolved method, or nil.
func (r *MemberRef) Method() *Method { return r.method }

// Field returns the resolved field, or nil.
func (r *MemberRef) Field() *Field { return r.field }

// IsStatic reports whether the referenced member is static.
func (r *MemberRef) IsStatic() bool { return r.Kind.IsStatic() }

// IsVolatile reports whether a resolved field is volatile.
func (r *MemberRef) IsVolatile() bool { return r.mods.Has(ModVolatile) }

// Equal reports symbolic equality.
func (r *MemberRef) Equal(o *MemberRef) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	return r.Owner == o.Owner && r.Kind == o.Kind && r.Name == o.Name &&
		r.sig == o.sig && r.ftype == o.ftype
}

// Key returns a string that is equal for symbolically equal references.
func (r *MemberRef) Key() string {
	return r.Owner.Name + "." + r.Name + ":" + r.typeDescriptor() + "/" + r.Kind.String()
}

func (r *MemberRef) typeDescriptor() string {
	if r.sig != nil {
		return r.sig.Descriptor()
	}
	return r.ftype.Name
}

func (r *MemberRef) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	sb.WriteByte(' ')
	sb.WriteString(r.Owner.Name)
	sb.WriteByte('.')
	sb.WriteString(r.Name)
	if r.sig != nil {
		sb.WriteString(r.sig.Descriptor())
	} else {
		sb.WriteByte(':')
		sb.WriteString(r.ftype.Name)
	}
	switch r.state {
	case refResolved:
		sb.WriteString(" (resolved)")
	case refFailed:
		sb.WriteString(" (error: ")
		sb.WriteString(r.err.Error())
		sb.WriteByte(')')
	}
	return sb.String()
}

// clone copies the symbolic part of the reference and its resolution
// results. The dispatch cache is not shared.
func (r *MemberRef) clone() *MemberRef {
	c := *r
	if c.cache != nil {
		c.cache = &InlineCache{}
	}
	return &c
}

// WithKind returns a copy of the reference with a different kind. The copy
// keeps resolution results when the new kind is compatible with them.
func (r *MemberRef) WithKind(kind RefKind) *MemberRef {
	if kind == r.Kind {
		return r
	}
	c := r.clone()
	c.Kind = kind
	switch kind {
	case RefInvokeVirtual, RefInvokeInterface:
		if c.cache == nil {
			c.cache = &InlineCache{}
		}
	default:
		c.cache = nil
	}
	return c
}

// AsSpecial returns a view of a virtual or interface reference that binds
// to the resolved method without virtual dispatch.
func (r *MemberRef) AsSpecial() *MemberRef {
	switch r.Kind {
	case RefInvokeVirtual, RefInvokeInterface:
		return r.WithKind(RefInvokeSpecial)
	}
	return r
}

// AsConstructor returns the newInvokeSpecial view of a constructor reference.
func (r *MemberRef) AsConstructor() *MemberRef {
	if r.Name == ConstructorName {
		return r.WithKind(RefNewInvokeSpecial)
	}
	return r
}

// dispatchKey returns the vtable key of the referenced method.
func (r *MemberRef) dispatchKey() string {
	return memberKey(r.Name, r.sig.Descriptor())
}
