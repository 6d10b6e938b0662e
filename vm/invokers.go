package vm

import "strconv"

// ---------------------------------------------------------------------------
// Invokers and linker forms
// ---------------------------------------------------------------------------
//
// An invoker is a handle that calls another handle passed as its first
// argument: the exact invoker demands the target's signature match exactly,
// the generic invoker adapts it with AsType. Invokers are cached per
// signature. The linker forms are the call-site entry points: they take the
// call's arguments followed by an appendix (the target, or the call site).

const (
	invokerExact = iota
	invokerGeneric

	invokerLimit
)

// ExactInvoker returns a handle of type (MethodHandle, sig...) that calls
// its first argument with the rest, failing with WrongMethodTypeError if
// the target's signature is not exactly sig.
func (rt *Runtime) ExactInvoker(sig *Signature) (*MethodHandle, error) {
	return rt.invoker(sig, invokerExact)
}

// GenericInvoker returns a handle of type (MethodHandle, sig...) that adapts
// its first argument to sig before calling it.
func (rt *Runtime) GenericInvoker(sig *Signature) (*MethodHandle, error) {
	return rt.invoker(sig, invokerGeneric)
}

func (rt *Runtime) invoker(sig *Signature, which int) (*MethodHandle, error) {
	if inv := sig.invokers[which].Load(); inv != nil {
		return inv, nil
	}
	if sig.slots > MaxInvokerArity {
		return nil, &IllegalArgumentError{Msg: "signature " + sig.Descriptor() + " needs " +
			strconv.Itoa(sig.slots) + " slots, invokers allow " + strconv.Itoa(MaxInvokerArity)}
	}
	typ, err := sig.InsertParameterTypes(0, MethodHandleClass)
	if err != nil {
		return nil, err
	}
	kind, check := FormExactInvoker, nfCheckExactType
	if which == invokerGeneric {
		kind, check = FormGenericInvoker, nfCheckGenericType
	}
	// The invoker's one field is the expected signature, not a target.
	inv, err := rt.bindValues("L", typ, sig, nil, func(sd *SpeciesData) *LambdaForm {
		return sd.invokerForm(sig, kind, check)
	})
	if err != nil {
		return nil, err
	}
	rt.recordForm(holderInvokers, kind.String(), inv.form.Load())
	if sig.invokers[which].CompareAndSwap(nil, inv) {
		return inv, nil
	}
	return sig.invokers[which].Load(), nil
}

// invokerForm builds
//
//	(inv, target, a...) => invokeBasic(check(target, argL0(inv)), a...)
func (sd *SpeciesData) invokerForm(sig *Signature, kind FormKind, check *NamedFunction) *LambdaForm {
	basic := sig.BasicForm()
	return sd.form(kind.String()+":"+basic.BasicString(), func() *LambdaForm {
		return buildInvokerForm(basic, kind, sd.getters[0], check)
	})
}

func buildInvokerForm(basic *Signature, kind FormKind, getter, check *NamedFunction) *LambdaForm {
	params := append([]BasicType{LType, LType}, basic.ParameterBasicTypes()...)
	b := newFormBuilder(params...)
	want := b.call(getter, b.param(0))
	t := b.call(check, b.param(1), want)
	res := b.call(nfInvokeBasic.of(basic.ReturnBasicType()), joinArgs(t, b.params(2, b.arity))...)
	return b.build(kind, res, basic.ReturnBasicType())
}

// linkToTargetMethodForm is the entry point of a call site bound to a
// fixed target:
//
//	(a..., target) => invokeBasic(target, a...)
func linkToTargetMethodForm(sig *Signature) *LambdaForm {
	return cachedForm(sig, FormLinkToTargetMethod, func(basic *Signature) *LambdaForm {
		b := newFormBuilder(append(basic.ParameterBasicTypes(), LType)...)
		n := b.arity
		res := b.call(nfInvokeBasic.of(basic.ReturnBasicType()), joinArgs(b.param(n-1), b.params(0, n-1))...)
		return b.build(FormLinkToTargetMethod, res, basic.ReturnBasicType())
	})
}

// linkToCallSiteForm is the entry point of a call site whose target may
// change:
//
//	(a..., site) => invokeBasic(getCallSiteTarget(site), a...)
func linkToCallSiteForm(sig *Signature) *LambdaForm {
	return cachedForm(sig, FormLinkToCallSite, func(basic *Signature) *LambdaForm {
		b := newFormBuilder(append(basic.ParameterBasicTypes(), LType)...)
		n := b.arity
		t := b.call(nfGetCallSiteTarget, b.param(n-1))
		res := b.call(nfInvokeBasic.of(basic.ReturnBasicType()), joinArgs(t, b.params(0, n-1))...)
		return b.build(FormLinkToCallSite, res, basic.ReturnBasicType())
	})
}
