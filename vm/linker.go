package vm

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Call-site linker
// ---------------------------------------------------------------------------

// SiteState is the link state of a dynamic call site.
type SiteState uint32

const (
	SiteUnlinked SiteState = iota
	SiteLinking
	SiteLinked
	SiteFailed
)

func (s SiteState) String() string {
	switch s {
	case SiteUnlinked:
		return "unlinked"
	case SiteLinking:
		return "linking"
	case SiteLinked:
		return "linked"
	case SiteFailed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Linkage is the result of linking a call site: an entry form taking the
// call's arguments followed by the appendix.
type Linkage struct {
	Form     *LambdaForm
	Appendix any
	Type     *Signature
}

// Invoke calls the linked entry point with arguments of the site's
// declared signature.
func (l *Linkage) Invoke(args ...any) (any, error) {
	ps := l.Type.ptypes
	if len(args) != len(ps) {
		return nil, &WrongMethodTypeError{Have: strconv.Itoa(len(args)) + " arguments", Want: l.Type.Descriptor()}
	}
	argv := make([]any, len(args)+1)
	for i, a := range args {
		v, err := convertArgument(a, ps[i])
		if err != nil {
			return nil, err
		}
		argv[i] = v
	}
	argv[len(args)] = l.Appendix
	res, err := l.Form.invoke(argv)
	if err != nil {
		return nil, err
	}
	return fromBasicValue(res, l.Type.rtype)
}

// LinkCallSite runs the bootstrap routine for a call site and returns its
// entry point. The bootstrap's call site must have a signature adaptable
// to typ; otherwise the error is a BootstrapLinkageError wrapping a
// LinkageError. Constant sites, and sites whose signature needs adaptation, link
// to their target directly; other sites link through the call site so a
// later SetTarget takes effect.
func (rt *Runtime) LinkCallSite(caller *Caller, routine *MethodHandle, name string,
	typ *Signature, args StaticArgs) (*Linkage, error) {
	if typ == nil {
		return nil, &NullPointerError{What: "call site type"}
	}
	cs, err := rt.bootstrapCallSite(caller, routine, name, typ, args)
	if err != nil {
		return nil, err
	}
	return rt.install(cs, name, typ)
}

func (rt *Runtime) install(cs *CallSite, name string, typ *Signature) (*Linkage, error) {
	if !cs.typ.IsAdaptableTo(typ) {
		cause := &LinkageError{Msg: "call site " + name + " of type " + cs.typ.Descriptor() +
			" is not adaptable to " + typ.Descriptor()}
		return nil, &BootstrapLinkageError{Site: name + typ.Descriptor(), Cause: cause}
	}
	if cs.kind != ConstantCallSite && cs.typ == typ {
		f := linkToCallSiteForm(typ)
		rt.recordForm(holderInvokers, FormLinkToCallSite.String(), f)
		return &Linkage{Form: f, Appendix: cs, Type: typ}, nil
	}
	var target *MethodHandle
	if cs.kind == ConstantCallSite {
		target = cs.Target()
	} else {
		dyn, err := cs.DynamicInvoker(rt)
		if err != nil {
			return nil, err
		}
		target = dyn
	}
	adapted, err := target.AsType(typ)
	if err != nil {
		return nil, &BootstrapLinkageError{
			Site:  name + typ.Descriptor(),
			Cause: &LinkageError{Msg: "cannot adapt call site " + name, Cause: err},
		}
	}
	f := linkToTargetMethodForm(typ)
	rt.recordForm(holderInvokers, FormLinkToTargetMethod.String(), f)
	return &Linkage{Form: f, Appendix: adapted, Type: typ}, nil
}

// DynamicSite is one symbolic dynamic call site. It links on first use;
// concurrent first uses may each run the bootstrap routine, and the first
// result published wins. A failure is permanent.
type DynamicSite struct {
	ID      uuid.UUID
	Caller  *Caller
	Routine *MethodHandle
	Name    string
	Type    *Signature
	Args    StaticArgs

	rt     *Runtime
	state  atomic.Uint32
	result atomic.Pointer[linkResult]
}

type linkResult struct {
	linkage *Linkage
	err     error
}

// NewDynamicSite creates an unlinked call site.
func (rt *Runtime) NewDynamicSite(caller *Caller, routine *MethodHandle, name string,
	typ *Signature, args StaticArgs) *DynamicSite {
	return &DynamicSite{
		ID:      uuid.New(),
		Caller:  caller,
		Routine: routine,
		Name:    name,
		Type:    typ,
		Args:    args,
		rt:      rt,
	}
}

// State returns the site's current state.
func (s *DynamicSite) State() SiteState { return SiteState(s.state.Load()) }

// Link links the site if needed and returns its linkage.
func (s *DynamicSite) Link() (*Linkage, error) {
	if r := s.result.Load(); r != nil {
		return r.linkage, r.err
	}
	s.state.CompareAndSwap(uint32(SiteUnlinked), uint32(SiteLinking))
	linkerLog.Debugf("linking site %s %s with %s static arguments", s.ID, s.Name, describeStaticArgs(s.Args))
	l, err := s.rt.LinkCallSite(s.Caller, s.Routine, s.Name, s.Type, s.Args)
	r := &linkResult{linkage: l, err: err}
	if !s.result.CompareAndSwap(nil, r) {
		r = s.result.Load()
	} else if r.err != nil {
		s.state.Store(uint32(SiteFailed))
		linkerLog.Errorf("site %s %s failed to link: %s", s.ID, s.Name, r.err)
	} else {
		s.state.Store(uint32(SiteLinked))
	}
	return r.linkage, r.err
}

// Invoke links the site if needed and calls it.
func (s *DynamicSite) Invoke(args ...any) (any, error) {
	l, err := s.Link()
	if err != nil {
		return nil, err
	}
	return l.Invoke(args...)
}
