package vm

import (
	"errors"
	"strconv"
)

// ---------------------------------------------------------------------------
// Static arguments
// ---------------------------------------------------------------------------

// StaticArgsKind tells how the execution engine offers static arguments.
type StaticArgsKind uint8

const (
	// StaticArgsNone offers no arguments.
	StaticArgsNone StaticArgsKind = iota
	// StaticArgsSingle offers one resolved argument.
	StaticArgsSingle
	// StaticArgsResolved offers a fully resolved list.
	StaticArgsResolved
	// StaticArgsDeferred offers a count and a fetcher; arguments are
	// resolved on demand.
	StaticArgsDeferred
)

func (k StaticArgsKind) String() string {
	switch k {
	case StaticArgsNone:
		return "none"
	case StaticArgsSingle:
		return "single"
	case StaticArgsResolved:
		return "resolved"
	case StaticArgsDeferred:
		return "deferred"
	}
	return "unknown"
}

// StaticArgs is the opaque bundle of bootstrap static arguments.
type StaticArgs struct {
	kind   StaticArgsKind
	values []any
	count  int
	fetch  ArgFetcher
}

// NoStaticArgs offers nothing.
func NoStaticArgs() StaticArgs { return StaticArgs{} }

// SingleStaticArg offers one resolved value.
func SingleStaticArg(v any) StaticArgs {
	return StaticArgs{kind: StaticArgsSingle, values: []any{v}, count: 1}
}

// ResolvedStaticArgs offers a resolved list.
func ResolvedStaticArgs(vals ...any) StaticArgs {
	if len(vals) == 0 {
		return NoStaticArgs()
	}
	return StaticArgs{kind: StaticArgsResolved, values: vals, count: len(vals)}
}

// DeferredStaticArgs offers n arguments resolved on demand by fetch.
func DeferredStaticArgs(n int, fetch ArgFetcher) StaticArgs {
	return StaticArgs{kind: StaticArgsDeferred, count: n, fetch: fetch}
}

// Kind returns how the arguments are offered.
func (a StaticArgs) Kind() StaticArgsKind { return a.kind }

// Len returns the number of arguments.
func (a StaticArgs) Len() int { return a.count }

// ---------------------------------------------------------------------------
// Bootstrap invoker
// ---------------------------------------------------------------------------

// bootstrapCall is one bootstrap invocation.
type bootstrapCall struct {
	caller  *Caller
	routine *MethodHandle
	name    string
	typ     any // *Signature or *Class
	args    StaticArgs
	rebox   bool
}

func (bc *bootstrapCall) site() string {
	switch t := bc.typ.(type) {
	case *Signature:
		return bc.name + t.Descriptor()
	case *Class:
		return bc.name + ":" + t.Name
	}
	return bc.name
}

// isPullRoutine reports whether a routine takes (Caller, BootstrapCallInfo).
func isPullRoutine(mh *MethodHandle) bool {
	ps := mh.typ.ptypes
	return len(ps) == 2 && !mh.varargs &&
		ps[0] == CallerClass && ps[1].IsAssignableFrom(BootstrapCallInfoClass)
}

// rebox replaces a boxed integer in byte range with the canonical cached
// box for its value.
func rebox(v any) any {
	b, ok := v.(*Boxed)
	if !ok || b.class != IntegerBoxClass {
		return v
	}
	x := b.v.(int32)
	if x == int32(int8(x)) {
		return ValueOfInt(x)
	}
	return v
}

// invokeBootstrap calls the routine with the convention it expects and
// returns its raw result. Failures are wrapped in BootstrapLinkageError;
// VMErrors pass through.
func (rt *Runtime) invokeBootstrap(bc *bootstrapCall) (any, error) {
	if bc.routine == nil {
		return nil, &NullPointerError{What: "bootstrap method"}
	}
	res, err := rt.callRoutine(bc)
	if err != nil {
		return nil, wrapBootstrapError(bc, err)
	}
	return res, nil
}

func wrapBootstrapError(bc *bootstrapCall, err error) error {
	var vmErr VMError
	if errors.As(err, &vmErr) {
		return vmErr
	}
	var ble *BootstrapLinkageError
	if errors.As(err, &ble) {
		return ble
	}
	bootstrapLog.Errorf("bootstrap method for %s failed: %s", bc.site(), err)
	return &BootstrapLinkageError{Site: bc.site(), Cause: err}
}

func (rt *Runtime) callRoutine(bc *bootstrapCall) (any, error) {
	fetch := bc.args.fetch
	if bc.rebox && fetch != nil {
		inner := fetch
		fetch = func(i int) (any, error) {
			v, err := inner(i)
			return rebox(v), err
		}
	}

	if isPullRoutine(bc.routine) {
		var info *lazyArgs
		if bc.args.kind == StaticArgsDeferred {
			info = newLazyArgs(bc.name, bc.typ, bc.args.count, fetch)
		} else {
			info = eagerArgs(bc.name, bc.typ, bc.eagerValues())
		}
		return bc.routine.Invoke(bc.caller, info)
	}

	statics := bc.eagerValues()
	if bc.args.kind == StaticArgsDeferred {
		var err error
		statics, err = newLazyArgs(bc.name, bc.typ, bc.args.count, fetch).materialize()
		if err != nil {
			return nil, err
		}
	}
	if res, ok, err := rt.fastBootstrap(bc, statics); ok {
		return res, err
	}
	args := make([]any, 0, 3+len(statics))
	args = append(args, bc.caller, bc.name, bc.typ)
	args = append(args, statics...)
	return rt.invokePositional(bc.routine, args)
}

// eagerValues returns the offered values of a non-deferred bundle,
// reboxed if required.
func (bc *bootstrapCall) eagerValues() []any {
	vals := append([]any(nil), bc.args.values...)
	if bc.rebox {
		for i, v := range vals {
			vals[i] = rebox(v)
		}
	}
	return vals
}

// invokePositional calls routine through the generic invoker for the
// argument count. Argument lists too long for an invoker go through
// InvokeWithArguments, which collects varargs before any positional call.
func (rt *Runtime) invokePositional(routine *MethodHandle, args []any) (any, error) {
	if len(args)+1 > MaxInvokerArity {
		bootstrapLog.Debugf("bootstrap call with %d arguments uses an argument array", len(args))
		return routine.InvokeWithArguments(args)
	}
	sig, err := GenericSignature(len(args))
	if err != nil {
		return nil, err
	}
	inv, err := rt.GenericInvoker(sig)
	if err != nil {
		return nil, err
	}
	return inv.Invoke(append([]any{routine}, args...)...)
}

// ---------------------------------------------------------------------------
// Known routine shapes
// ---------------------------------------------------------------------------

var (
	// (Caller, String, MethodType)CallSite
	bootstrapPlainType = MustIntern(CallSiteClass, CallerClass, StringClass, MethodTypeClass)
	// (Caller, String, MethodType, MethodType, MethodHandle, MethodType)CallSite
	metafactoryType = MustIntern(CallSiteClass, CallerClass, StringClass, MethodTypeClass,
		MethodTypeClass, MethodHandleClass, MethodTypeClass)
	// (Caller, String, MethodType, String, Object[])CallSite
	concatFactoryType = MustIntern(CallSiteClass, CallerClass, StringClass, MethodTypeClass,
		StringClass, ObjectArrayClass)
)

// fastBootstrap calls routines of a few well-known shapes with exact
// argument types, skipping the generic invoker. It reports false when the
// routine or its arguments do not fit, leaving the call to the generic
// path, which produces the same result.
func (rt *Runtime) fastBootstrap(bc *bootstrapCall, statics []any) (any, bool, error) {
	typ, ok := bc.typ.(*Signature)
	if !ok {
		return nil, false, nil
	}
	r := bc.routine
	switch r.typ {
	case bootstrapPlainType:
		if len(statics) != 0 || r.varargs {
			return nil, false, nil
		}
		res, err := r.InvokeExact(bc.caller, bc.name, typ)
		return res, true, err
	case metafactoryType:
		if len(statics) != 3 || r.varargs {
			return nil, false, nil
		}
		sam, ok1 := statics[0].(*Signature)
		impl, ok2 := statics[1].(*MethodHandle)
		inst, ok3 := statics[2].(*Signature)
		if !ok1 || !ok2 || !ok3 {
			return nil, false, nil
		}
		res, err := r.InvokeExact(bc.caller, bc.name, typ, sam, impl, inst)
		return res, true, err
	case concatFactoryType:
		if len(statics) == 0 || !r.varargs {
			return nil, false, nil
		}
		recipe, ok := statics[0].(string)
		if !ok {
			return nil, false, nil
		}
		consts := NewArray(ObjectClass, len(statics)-1)
		for i, v := range statics[1:] {
			consts.Elems[i] = Box(v)
		}
		res, err := r.AsFixedArity().InvokeExact(bc.caller, bc.name, typ, recipe, consts)
		return res, true, err
	}
	return nil, false, nil
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// bootstrapCallSite runs a call-site bootstrap routine and checks that it
// produced a call site.
func (rt *Runtime) bootstrapCallSite(caller *Caller, routine *MethodHandle, name string,
	typ *Signature, args StaticArgs) (*CallSite, error) {
	bc := &bootstrapCall{caller: caller, routine: routine, name: name, typ: typ, args: args, rebox: true}
	res, err := rt.invokeBootstrap(bc)
	if err != nil {
		return nil, err
	}
	cs, ok := res.(*CallSite)
	if !ok || cs == nil {
		return nil, wrapBootstrapError(bc, &ClassCastError{From: describeValue(res), To: CallSiteClass.Name})
	}
	return cs, nil
}

// ResolveDynamicConstant runs a constant bootstrap routine and returns its
// result converted to typ. Byte-range Integer static arguments are passed
// exactly as offered here; only call-site bootstraps rebox them.
func (rt *Runtime) ResolveDynamicConstant(caller *Caller, routine *MethodHandle, name string,
	typ *Class, args StaticArgs) (any, error) {
	if typ == nil || typ == VoidClass {
		return nil, &IllegalArgumentError{Msg: "dynamic constant " + name + " needs a non-void type"}
	}
	bc := &bootstrapCall{caller: caller, routine: routine, name: name, typ: typ, args: args}
	res, err := rt.invokeBootstrap(bc)
	if err != nil {
		return nil, err
	}
	v, err := convertElement(res, typ)
	if err != nil {
		return nil, wrapBootstrapError(bc, err)
	}
	bootstrapLog.Debugf("resolved dynamic constant %s", bc.site())
	return v, nil
}

// describeStaticArgs renders a bundle for diagnostics.
func describeStaticArgs(a StaticArgs) string {
	return a.kind.String() + "[" + strconv.Itoa(a.count) + "]"
}
