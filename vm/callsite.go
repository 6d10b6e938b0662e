package vm

import "sync/atomic"

// CallSiteKind selects how a call site's target may change.
type CallSiteKind uint8

const (
	// ConstantCallSite targets are fixed at creation.
	ConstantCallSite CallSiteKind = iota
	// MutableCallSite targets may be replaced.
	MutableCallSite
	// VolatileCallSite targets may be replaced and are read with acquire
	// semantics on every call.
	VolatileCallSite
)

func (k CallSiteKind) String() string {
	switch k {
	case ConstantCallSite:
		return "constant"
	case MutableCallSite:
		return "mutable"
	case VolatileCallSite:
		return "volatile"
	}
	return "unknown"
}

// CallSite holds exactly one current target of a fixed signature.
type CallSite struct {
	typ    *Signature
	kind   CallSiteKind
	target atomic.Pointer[MethodHandle]
}

// NewCallSite creates a call site of the given kind holding target. The
// site's signature is the target's.
func NewCallSite(kind CallSiteKind, target *MethodHandle) (*CallSite, error) {
	if target == nil {
		return nil, &NullPointerError{What: "call site target"}
	}
	cs := &CallSite{typ: target.typ, kind: kind}
	cs.target.Store(target)
	return cs, nil
}

// NewConstantCallSite creates a call site whose target never changes.
func NewConstantCallSite(target *MethodHandle) (*CallSite, error) {
	return NewCallSite(ConstantCallSite, target)
}

// Type returns the site's signature.
func (cs *CallSite) Type() *Signature { return cs.typ }

// Kind returns the site's kind.
func (cs *CallSite) Kind() CallSiteKind { return cs.kind }

// Target returns the current target.
func (cs *CallSite) Target() *MethodHandle { return cs.target.Load() }

// SetTarget replaces the target. The new target must have exactly the
// site's signature; constant sites refuse.
func (cs *CallSite) SetTarget(mh *MethodHandle) error {
	if cs.kind == ConstantCallSite {
		return &UnsupportedOperationError{Op: "SetTarget on a constant call site"}
	}
	if mh == nil {
		return &NullPointerError{What: "call site target"}
	}
	if mh.typ != cs.typ {
		return &WrongMethodTypeError{Have: mh.typ.Descriptor(), Want: cs.typ.Descriptor()}
	}
	cs.target.Store(mh)
	return nil
}

// DynamicInvoker returns a handle of the site's signature that calls
// whatever target the site holds at the time of each call.
func (cs *CallSite) DynamicInvoker(rt *Runtime) (*MethodHandle, error) {
	if rt == nil {
		rt = Default()
	}
	return rt.bindValues("L", cs.typ, cs, nil, func(sd *SpeciesData) *LambdaForm {
		basic := cs.typ.BasicForm()
		return sd.form("dynamicInvoker:"+basic.BasicString(), func() *LambdaForm {
			b := newFormBuilder(append([]BasicType{LType}, basic.ParameterBasicTypes()...)...)
			site := b.call(sd.getters[0], b.param(0))
			t := b.call(nfGetCallSiteTarget, site)
			res := b.call(nfInvokeBasic.of(basic.ReturnBasicType()), joinArgs(t, b.params(1, b.arity))...)
			return b.build(FormDynamicInvoker, res, basic.ReturnBasicType())
		})
	})
}
