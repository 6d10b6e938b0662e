package vm

// ---------------------------------------------------------------------------
// Direct handles
// ---------------------------------------------------------------------------
//
// A direct handle calls a resolved member with no adaptation. Its form is
// one of a small set of shapes chosen by reference kind and shared by every
// handle with the same basic signature:
//
//	invokeStatic      (mh, a...) => linkToStatic(a..., internalMemberName(mh))
//	invokeStaticInit  (mh, a...) => linkToStatic(a..., internalMemberNameEnsureInit(mh))
//	invokeInterface   (mh, r, a...) => mn = internalMemberName(mh);
//	                                   linkToInterface(checkReceiver(mh, r), a..., mn)
//	newInvokeSpecial  (mh, a...) => mn = internalMemberName(mh); o = allocateInstance(mh);
//	                                linkToSpecial(o, a..., mn); o
//
// Calls too wide for the native slot limit are collected into an array
// and passed through invokeMemberWithArray instead.

// directHandleType derives the handle signature of a resolved member.
func directHandleType(ref *MemberRef) (*Signature, error) {
	switch ref.Kind {
	case RefGetField:
		return Intern(ref.ftype, ref.Owner)
	case RefPutField:
		return Intern(VoidClass, ref.Owner, ref.ftype)
	case RefGetStatic:
		return Intern(ref.ftype)
	case RefPutStatic:
		return Intern(VoidClass, ref.ftype)
	case RefInvokeStatic:
		return ref.sig, nil
	case RefNewInvokeSpecial:
		return ref.sig.ChangeReturnType(ref.Owner)
	case RefInvokeSpecial:
		recv := ref.Owner
		if ref.specialCaller != nil {
			recv = ref.specialCaller
		}
		return ref.sig.InsertParameterTypes(0, recv)
	case RefInvokeVirtual, RefInvokeInterface:
		return ref.sig.InsertParameterTypes(0, ref.Owner)
	}
	return nil, &IllegalArgumentError{Msg: "no direct handle for " + ref.Kind.String()}
}

// newDirectHandle creates a direct handle for a resolved member.
func (rt *Runtime) newDirectHandle(ref *MemberRef) (*MethodHandle, error) {
	if !ref.IsResolved() {
		return nil, &LinkageError{Msg: "unresolved member " + ref.Key(), Cause: ref.Err()}
	}
	typ, err := directHandleType(ref)
	if err != nil {
		return nil, err
	}
	needsInit := rt.needsInitBarrier(ref)
	mh := newHandle(rt, typ, rt.directForm(ref, typ, needsInit))
	mh.member = ref
	return mh, nil
}

// needsInitBarrier reports whether access to ref must first initialize its
// owner. Once an owner has been observed initialized it never needs one
// again.
func (rt *Runtime) needsInitBarrier(ref *MemberRef) bool {
	switch ref.Kind {
	case RefInvokeStatic, RefGetStatic, RefPutStatic, RefNewInvokeSpecial:
	default:
		return false
	}
	return !rt.inits.isInitialized(ref.Owner)
}

// directFormKind picks the invoke shape for a method reference.
func directFormKind(ref *MemberRef, needsInit bool) FormKind {
	switch ref.Kind {
	case RefInvokeVirtual:
		return FormDirectInvokeVirtual
	case RefInvokeInterface:
		return FormDirectInvokeInterface
	case RefInvokeStatic:
		if needsInit {
			return FormDirectInvokeStaticInit
		}
		return FormDirectInvokeStatic
	case RefInvokeSpecial:
		if ref.specialCaller != nil {
			return FormDirectInvokeSpecialChecked
		}
		return FormDirectInvokeSpecial
	case RefNewInvokeSpecial:
		if needsInit {
			return FormDirectNewInvokeSpecialInit
		}
		return FormDirectNewInvokeSpecial
	}
	return FormGeneric
}

// directForm returns the shared form for a direct handle of type typ.
func (rt *Runtime) directForm(ref *MemberRef, typ *Signature, needsInit bool) *LambdaForm {
	if ref.Kind.IsField() {
		return rt.fieldForm(accessorFor(ref, needsInit), typ)
	}
	kind := directFormKind(ref, needsInit)
	if typ.slots+2 > MaxJVMArity {
		f := directArrayForm(typ.BasicForm(), kind)
		rt.recordForm(holderDirect, directArrayName(kind), f)
		return f
	}
	f := cachedForm(typ, kind, func(basic *Signature) *LambdaForm {
		return buildDirectForm(basic, kind, false)
	})
	rt.recordForm(holderDirect, kind.String(), f)
	return f
}

// directArrayForm returns the shared array-call form of kind for the
// basic signature typ.
func directArrayForm(typ *Signature, kind FormKind) *LambdaForm {
	return internForm("array:"+kind.String()+":"+typ.BasicString(), func() *LambdaForm {
		return buildDirectForm(typ, kind, true)
	})
}

// directArrayName is the trace name of an array-call form: the array
// kind, a dot and the invoke kind it stands in for.
func directArrayName(kind FormKind) string {
	return FormDirectArrayCall.String() + "." + kind.String()
}

// buildDirectForm builds an invoke shape over basic signature sig (the
// handle's, without the leading handle parameter).
func buildDirectForm(sig *Signature, kind FormKind, viaArray bool) *LambdaForm {
	b := newFormBuilder(append([]BasicType{LType}, sig.ParameterBasicTypes()...)...)
	mh := b.param(0)
	args := b.params(1, b.arity)

	memberName := nfInternalMemberName
	var link *typedFunctions
	switch kind {
	case FormDirectInvokeVirtual:
		link = &nfLinkToVirtual
	case FormDirectInvokeInterface:
		link = &nfLinkToInterface
	case FormDirectInvokeStatic:
		link = &nfLinkToStatic
	case FormDirectInvokeStaticInit:
		link = &nfLinkToStatic
		memberName = nfInternalMemberNameEnsureInit
	case FormDirectInvokeSpecial, FormDirectInvokeSpecialChecked, FormDirectNewInvokeSpecial:
		link = &nfLinkToSpecial
	case FormDirectNewInvokeSpecialInit:
		link = &nfLinkToSpecial
		memberName = nfInternalMemberNameEnsureInit
	default:
		panic("vm: not a direct invoke kind: " + kind.String())
	}

	mn := b.call(memberName, mh)

	var obj *Name
	switch kind {
	case FormDirectInvokeInterface, FormDirectInvokeSpecialChecked:
		args[0] = b.call(nfCheckReceiver, mh, args[0])
	case FormDirectNewInvokeSpecial, FormDirectNewInvokeSpecialInit:
		obj = b.call(nfAllocateInstance, mh)
		args = joinArgs(obj, args)
	}

	rtype := sig.ReturnBasicType()
	callType := rtype
	if obj != nil {
		callType = VType
	}
	var res *Name
	if viaArray {
		arr := b.call(nfCollectArguments, args...)
		res = b.call(nfInvokeWithArray.of(callType), arr, mn)
	} else {
		res = b.call(link.of(callType), joinArgs(args, mn)...)
	}
	if obj != nil {
		res = obj
	}
	if viaArray {
		return b.build(FormDirectArrayCall, res, rtype)
	}
	return b.build(kind, res, rtype)
}

// fieldForm returns the form of a field accessor:
//
//	getField   (mh, o)    => get(mh, checkBase(o))
//	putField   (mh, o, v) => put(mh, checkBase(o), v)
//	getStatic  (mh)       => get(mh, staticBase(mh))
//	putStatic  (mh, v)    => put(mh, staticBase(mh), v)
//
// with staticBaseEnsureInit standing in for staticBase behind a barrier.
func (rt *Runtime) fieldForm(a fieldAccessor, typ *Signature) *LambdaForm {
	basic := typ.BasicForm()
	key := "field:" + a.name() + ":" + basic.BasicString()
	f := internForm(key, func() *LambdaForm {
		b := newFormBuilder(append([]BasicType{LType}, basic.ParameterBasicTypes()...)...)
		mh := b.param(0)
		var base *Name
		next := 1
		switch {
		case !a.static:
			base = b.call(nfCheckBase, b.param(1))
			next = 2
		case a.init:
			base = b.call(nfStaticBaseEnsureInit, mh)
		default:
			base = b.call(nfStaticBase, mh)
		}
		if a.put {
			b.call(a.primitive(), mh, base, b.param(next))
			return b.build(FormFieldAccess, nil, VType)
		}
		v := b.call(a.primitive(), mh, base)
		return b.build(FormFieldAccess, v, basic.ReturnBasicType())
	})
	rt.recordForm(holderDirect, a.name(), f)
	return f
}
