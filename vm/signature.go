package vm

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"weak"
)

// Slot ceilings of the native calling convention. A long or double
// argument occupies two slots.
const (
	// MaxJVMArity is the largest parameter slot count a signature may carry.
	MaxJVMArity = 255
	// MaxHandleArity leaves room for the handle itself as a leading argument.
	MaxHandleArity = MaxJVMArity - 1
	// MaxInvokerArity leaves room for an invoker and its target handle.
	MaxInvokerArity = MaxJVMArity - 2
)

// Signature is a canonical (return type, parameter types) tuple. Signatures
// are interned: structurally equal signatures are the same pointer, so they
// can be compared with ==.
type Signature struct {
	rtype  *Class
	ptypes []*Class
	slots  int
	key    string

	erased atomic.Pointer[Signature]
	basic  atomic.Pointer[Signature]

	// Populated only on basic signatures: the dense per-shape form cache.
	forms [formLimit]atomic.Pointer[LambdaForm]

	// Exact and generic invokers for this exact signature.
	invokers [invokerLimit]atomic.Pointer[MethodHandle]
}

// ---------------------------------------------------------------------------
// Interning
// ---------------------------------------------------------------------------

// The intern table holds signatures weakly. Basic signatures are pinned so
// the per-shape form caches hanging off them are never lost.
var signatures = struct {
	mu     sync.RWMutex
	byKey  map[string]weak.Pointer[Signature]
	pinned map[string]*Signature
}{
	byKey:  make(map[string]weak.Pointer[Signature]),
	pinned: make(map[string]*Signature),
}

// Intern returns the canonical signature with the given return and parameter
// types. It fails with InvalidSignatureError if a parameter is void or nil,
// or if the parameters need more than MaxJVMArity slots.
func Intern(rtype *Class, ptypes ...*Class) (*Signature, error) {
	slots, err := validateSignature(rtype, ptypes)
	if err != nil {
		return nil, err
	}
	key := signatureKey(rtype, ptypes)

	// Fast path: read-only lookup
	signatures.mu.RLock()
	if wp, ok := signatures.byKey[key]; ok {
		if s := wp.Value(); s != nil {
			signatures.mu.RUnlock()
			return s, nil
		}
	}
	signatures.mu.RUnlock()

	signatures.mu.Lock()
	defer signatures.mu.Unlock()

	// Double-check after acquiring write lock
	if wp, ok := signatures.byKey[key]; ok {
		if s := wp.Value(); s != nil {
			return s, nil
		}
	}

	s := &Signature{
		rtype:  rtype,
		ptypes: append([]*Class(nil), ptypes...),
		slots:  slots,
		key:    key,
	}
	signatures.byKey[key] = weak.Make(s)
	if s.isBasicShape() {
		signatures.pinned[key] = s
	} else {
		runtime.AddCleanup(s, dropSignature, key)
	}
	return s, nil
}

// MustIntern is like Intern but panics on an invalid signature.
// Useful for static initialization.
func MustIntern(rtype *Class, ptypes ...*Class) *Signature {
	s, err := Intern(rtype, ptypes...)
	if err != nil {
		panic(err)
	}
	return s
}

func dropSignature(key string) {
	signatures.mu.Lock()
	defer signatures.mu.Unlock()
	if wp, ok := signatures.byKey[key]; ok && wp.Value() == nil {
		delete(signatures.byKey, key)
	}
}

// InternedSignatures returns the number of live interned signatures.
func InternedSignatures() int {
	signatures.mu.RLock()
	defer signatures.mu.RUnlock()
	n := 0
	for _, wp := range signatures.byKey {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

func validateSignature(rtype *Class, ptypes []*Class) (int, error) {
	if rtype == nil {
		return 0, &InvalidSignatureError{Reason: "missing return type"}
	}
	slots := 0
	for i, p := range ptypes {
		if p == nil {
			return 0, &InvalidSignatureError{Reason: "missing type for parameter " + strconv.Itoa(i)}
		}
		if p.kind == KindVoid {
			return 0, &InvalidSignatureError{Reason: "void parameter at index " + strconv.Itoa(i)}
		}
		slots += BasicTypeOf(p).Slots()
	}
	if slots > MaxJVMArity {
		return 0, &InvalidSignatureError{
			Reason: "parameter slots " + strconv.Itoa(slots) + " exceed " + strconv.Itoa(MaxJVMArity),
		}
	}
	return slots, nil
}

func signatureKey(rtype *Class, ptypes []*Class) string {
	var sb strings.Builder
	sb.Grow(4 * (len(ptypes) + 1))
	sb.WriteString(strconv.FormatUint(uint64(rtype.id), 36))
	sb.WriteByte('(')
	for i, p := range ptypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(p.id), 36))
	}
	sb.WriteByte(')')
	return sb.String()
}

func (s *Signature) isBasicShape() bool {
	if s.rtype != BasicTypeOf(s.rtype).Class() {
		return false
	}
	for _, p := range s.ptypes {
		if p != BasicTypeOf(p).Class() {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ReturnType returns the return type.
func (s *Signature) ReturnType() *Class { return s.rtype }

// ParameterCount returns the number of parameters.
func (s *Signature) ParameterCount() int { return len(s.ptypes) }

// ParameterType returns the type of parameter i.
func (s *Signature) ParameterType(i int) *Class { return s.ptypes[i] }

// ParameterTypes returns a copy of the parameter types.
func (s *Signature) ParameterTypes() []*Class {
	return append([]*Class(nil), s.ptypes...)
}

// ParameterSlotCount returns the number of native argument slots the
// parameters occupy.
func (s *Signature) ParameterSlotCount() int { return s.slots }

// LastParameterType returns the type of the final parameter, or void when
// there are none.
func (s *Signature) LastParameterType() *Class {
	if len(s.ptypes) == 0 {
		return VoidClass
	}
	return s.ptypes[len(s.ptypes)-1]
}

// Descriptor renders the signature as "(int,Object)String".
func (s *Signature) Descriptor() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range s.ptypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Name)
	}
	sb.WriteByte(')')
	sb.WriteString(s.rtype.Name)
	return sb.String()
}

func (s *Signature) String() string { return s.Descriptor() }

// ---------------------------------------------------------------------------
// Reductions
// ---------------------------------------------------------------------------

// Erase replaces every reference type with Object. Primitive types,
// including a void return, pass through unchanged.
func (s *Signature) Erase() *Signature {
	if e := s.erased.Load(); e != nil {
		return e
	}
	ps := make([]*Class, len(s.ptypes))
	for i, p := range s.ptypes {
		ps[i] = eraseClass(p)
	}
	e := MustIntern(eraseClass(s.rtype), ps...)
	s.erased.CompareAndSwap(nil, e)
	return s.erased.Load()
}

// BasicForm erases the signature and also collapses boolean and the
// sub-word integer types to int.
func (s *Signature) BasicForm() *Signature {
	if b := s.basic.Load(); b != nil {
		return b
	}
	ps := make([]*Class, len(s.ptypes))
	for i, p := range s.ptypes {
		ps[i] = BasicTypeOf(p).Class()
	}
	b := MustIntern(BasicTypeOf(s.rtype).Class(), ps...)
	s.basic.CompareAndSwap(nil, b)
	return s.basic.Load()
}

// IsBasic reports whether the signature is its own basic form.
func (s *Signature) IsBasic() bool { return s.BasicForm() == s }

// IsGeneric reports whether every type in the signature is Object.
func (s *Signature) IsGeneric() bool {
	if s.rtype != ObjectClass {
		return false
	}
	for _, p := range s.ptypes {
		if p != ObjectClass {
			return false
		}
	}
	return true
}

func eraseClass(c *Class) *Class {
	if c.IsPrimitive() {
		return c
	}
	return ObjectClass
}

// ParameterBasicTypes returns the basic type of each parameter.
func (s *Signature) ParameterBasicTypes() []BasicType {
	out := make([]BasicType, len(s.ptypes))
	for i, p := range s.ptypes {
		out[i] = BasicTypeOf(p)
	}
	return out
}

// ReturnBasicType returns the basic type of the return.
func (s *Signature) ReturnBasicType() BasicType { return BasicTypeOf(s.rtype) }

// BasicString renders the basic-type shape as "<params>_<return>", for
// example "LIJ_V". This is the shape name used in resolution traces.
func (s *Signature) BasicString() string {
	return BasicTypesString(s.ParameterBasicTypes()) + "_" + string(s.ReturnBasicType().Char())
}

// ParseBasicSignature parses a "<params>_<return>" shape name into the
// corresponding basic signature.
func ParseBasicSignature(text string) (*Signature, error) {
	params, ret, ok := strings.Cut(strings.TrimSpace(text), "_")
	if !ok || len(ret) != 1 {
		return nil, &InvalidSignatureError{Reason: "malformed basic signature " + strconv.Quote(text)}
	}
	rt, err := BasicTypeForChar(ret[0])
	if err != nil {
		return nil, &InvalidSignatureError{Reason: err.Error()}
	}
	types, err := ParseBasicTypes(params)
	if err != nil {
		return nil, &InvalidSignatureError{Reason: err.Error()}
	}
	ps := make([]*Class, len(types))
	for i, t := range types {
		ps[i] = t.Class()
	}
	return Intern(rt.Class(), ps...)
}

// GenericSignature returns (Object, ...)Object with n parameters.
func GenericSignature(n int) (*Signature, error) {
	ps := make([]*Class, n)
	for i := range ps {
		ps[i] = ObjectClass
	}
	return Intern(ObjectClass, ps...)
}

// ---------------------------------------------------------------------------
// Derived signatures
// ---------------------------------------------------------------------------

// ChangeReturnType returns the signature with a different return type.
func (s *Signature) ChangeReturnType(rtype *Class) (*Signature, error) {
	if rtype == s.rtype {
		return s, nil
	}
	return Intern(rtype, s.ptypes...)
}

// ChangeParameterType returns the signature with parameter i replaced.
func (s *Signature) ChangeParameterType(i int, c *Class) (*Signature, error) {
	if err := s.checkIndex(i, len(s.ptypes)-1); err != nil {
		return nil, err
	}
	if s.ptypes[i] == c {
		return s, nil
	}
	ps := s.ParameterTypes()
	ps[i] = c
	return Intern(s.rtype, ps...)
}

// InsertParameterTypes inserts types before position pos.
func (s *Signature) InsertParameterTypes(pos int, cs ...*Class) (*Signature, error) {
	if err := s.checkIndex(pos, len(s.ptypes)); err != nil {
		return nil, err
	}
	ps := make([]*Class, 0, len(s.ptypes)+len(cs))
	ps = append(ps, s.ptypes[:pos]...)
	ps = append(ps, cs...)
	ps = append(ps, s.ptypes[pos:]...)
	return Intern(s.rtype, ps...)
}

// AppendParameterTypes adds types after the last parameter.
func (s *Signature) AppendParameterTypes(cs ...*Class) (*Signature, error) {
	return s.InsertParameterTypes(len(s.ptypes), cs...)
}

// DropParameterTypes removes the parameters in [start, end).
func (s *Signature) DropParameterTypes(start, end int) (*Signature, error) {
	if start < 0 || end > len(s.ptypes) || start > end {
		return nil, &IllegalArgumentError{Msg: "bad parameter range [" +
			strconv.Itoa(start) + "," + strconv.Itoa(end) + ") for " + s.Descriptor()}
	}
	ps := make([]*Class, 0, len(s.ptypes)-(end-start))
	ps = append(ps, s.ptypes[:start]...)
	ps = append(ps, s.ptypes[end:]...)
	return Intern(s.rtype, ps...)
}

func (s *Signature) checkIndex(i, max int) error {
	if i < 0 || i > max {
		return &IllegalArgumentError{Msg: "parameter index " + strconv.Itoa(i) + " out of range for " + s.Descriptor()}
	}
	return nil
}
