package vm

import "strconv"

// ---------------------------------------------------------------------------
// Primitive library
// ---------------------------------------------------------------------------
//
// Every temporary of a lambda form applies one of the functions below. They
// take and return basic-representation values.

var (
	nfInvokeBasic     typedFunctions
	nfLinkToVirtual   typedFunctions
	nfLinkToInterface typedFunctions
	nfLinkToSpecial   typedFunctions
	nfLinkToStatic    typedFunctions
	nfInvokeWithArray typedFunctions

	nfInternalMemberName           *NamedFunction
	nfInternalMemberNameEnsureInit *NamedFunction
	nfCheckReceiver                *NamedFunction
	nfAllocateInstance             *NamedFunction
	nfCheckBase                    *NamedFunction
	nfStaticBase                   *NamedFunction
	nfStaticBaseEnsureInit         *NamedFunction
	nfCollectArguments             *NamedFunction

	nfCheckCast *NamedFunction
	nfBox       *NamedFunction
	nfUnbox     typedFunctions
	nfWiden     typedFunctions
	nfZero      typedFunctions

	nfCheckSpreadArgument *NamedFunction
	nfArrayElement        typedFunctions
	nfCollectArray        *NamedFunction

	nfGetCallSiteTarget *NamedFunction
	nfCheckExactType    *NamedFunction
	nfCheckGenericType  *NamedFunction
)

// The primitives are wired in init because several of them reach back into
// form construction.
func init() {
	nfInvokeBasic = newTypedFunctions("invokeBasic", primInvokeBasic)
	nfLinkToVirtual = newTypedFunctions("linkToVirtual", primLinkTo(RefInvokeVirtual))
	nfLinkToInterface = newTypedFunctions("linkToInterface", primLinkTo(RefInvokeInterface))
	nfLinkToSpecial = newTypedFunctions("linkToSpecial", primLinkTo(RefInvokeSpecial))
	nfLinkToStatic = newTypedFunctions("linkToStatic", primLinkTo(RefInvokeStatic))
	nfInvokeWithArray = newTypedFunctions("invokeMemberWithArray", primInvokeWithArray)

	nfInternalMemberName = newNamedFunction("internalMemberName", LType, primInternalMemberName)
	nfInternalMemberNameEnsureInit = newNamedFunction("internalMemberNameEnsureInit", LType, primInternalMemberNameEnsureInit)
	nfCheckReceiver = newNamedFunction("checkReceiver", LType, primCheckReceiver)
	nfAllocateInstance = newNamedFunction("allocateInstance", LType, primAllocateInstance)
	nfCheckBase = newNamedFunction("checkBase", LType, primCheckBase)
	nfStaticBase = newNamedFunction("staticBase", LType, primStaticBase)
	nfStaticBaseEnsureInit = newNamedFunction("staticBaseEnsureInit", LType, primStaticBaseEnsureInit)
	nfCollectArguments = newNamedFunction("collectArguments", LType, primCollectArguments)

	nfCheckCast = newNamedFunction("checkCast", LType, primCheckCast)
	nfBox = newNamedFunction("box", LType, primBox)
	nfUnbox = newTypedFunctions("unbox", primUnbox)
	nfWiden = newTypedFunctions("widen", primWiden)
	nfZero = newTypedFunctions("zeroValue", primZero)

	nfCheckSpreadArgument = newNamedFunction("checkSpreadArgument", LType, primCheckSpreadArgument)
	nfArrayElement = newTypedFunctions("arrayElement", primArrayElement)
	nfCollectArray = newNamedFunction("collectArray", LType, primCollectArray)

	nfGetCallSiteTarget = newNamedFunction("getCallSiteTarget", LType, primGetCallSiteTarget)
	nfCheckExactType = newNamedFunction("checkExactType", LType, primCheckExactType)
	nfCheckGenericType = newNamedFunction("checkGenericType", LType, primCheckGenericType)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func primInvokeBasic(args []any) (any, error) {
	target, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	return target.invokeBasic(args[1:])
}

func asHandle(v any) (*MethodHandle, error) {
	switch x := v.(type) {
	case *MethodHandle:
		return x, nil
	case nil:
		return nil, &NullPointerError{What: "method handle"}
	}
	return nil, &ClassCastError{From: describeValue(v), To: MethodHandleClass.Name}
}

// primLinkTo invokes the member passed as the trailing argument.
func primLinkTo(kind RefKind) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		mn, ok := args[len(args)-1].(*MemberRef)
		if !ok {
			return nil, &ClassCastError{From: describeValue(args[len(args)-1]), To: MemberRefClass.Name}
		}
		return callMember(mn, kind, args[:len(args)-1])
	}
}

func primInvokeWithArray(args []any) (any, error) {
	arr := args[0].(*Array)
	mn := args[1].(*MemberRef)
	return callMember(mn, mn.Kind, arr.Elems)
}

// callMember is the native invoke primitive: it converts basic arguments to
// the member's declared types, selects the implementation (dispatching on
// the receiver for virtual and interface kinds) and converts the result
// back to its basic representation.
func callMember(mn *MemberRef, kind RefKind, argv []any) (any, error) {
	m := mn.method
	if m == nil {
		return nil, &LinkageError{Msg: "unresolved member " + mn.Key()}
	}
	sig := m.Sig
	offset := 0
	call := make([]any, len(argv))
	if !m.IsStatic() {
		if len(argv) == 0 || argv[0] == nil {
			return nil, &NullPointerError{What: "receiver of " + mn.Key()}
		}
		call[0] = argv[0]
		offset = 1
		switch kind {
		case RefInvokeVirtual, RefInvokeInterface:
			recv := ClassOf(argv[0])
			cache := mn.cache
			if cache == nil {
				cache = &InlineCache{}
			}
			if m = cache.dispatch(recv, mn.dispatchKey()); m == nil {
				return nil, &LinkageError{Msg: "no implementation of " + mn.Key() + " in " + recv.Name}
			}
		}
	}
	if len(argv)-offset != len(sig.ptypes) {
		return nil, &WrongMethodTypeError{
			Have: strconv.Itoa(len(argv)-offset) + " arguments",
			Want: sig.Descriptor(),
		}
	}
	if m.Code == nil {
		return nil, &LinkageError{Msg: "abstract method " + mn.Key()}
	}
	for i, p := range sig.ptypes {
		v, err := fromBasicValue(argv[offset+i], p)
		if err != nil {
			return nil, err
		}
		call[offset+i] = v
	}
	res, err := m.Code(call)
	if err != nil {
		return nil, err
	}
	return toBasicValue(res, sig.ReturnBasicType())
}

// fromBasicValue converts a basic-representation value to the declared
// class, narrowing int32 back to sub-word integers and booleans.
func fromBasicValue(v any, c *Class) (any, error) {
	if !c.IsPrimitive() {
		return v, nil
	}
	if c == VoidClass {
		return nil, nil
	}
	if b, ok := v.(*Boxed); ok {
		v = b.v
	}
	return widenPrimitive(v, c)
}

// ---------------------------------------------------------------------------
// Direct-handle support
// ---------------------------------------------------------------------------

func primInternalMemberName(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	return mh.member, nil
}

func primInternalMemberNameEnsureInit(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	if err := ensureInitialized(mh); err != nil {
		return nil, err
	}
	return mh.member, nil
}

// primCheckReceiver guards special and interface invokes: the receiver must
// be an instance of the caller class (checked special) or the declared
// interface.
func primCheckReceiver(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	recv := args[1]
	expected := mh.member.Owner
	if mh.member.specialCaller != nil {
		expected = mh.member.specialCaller
	}
	if recv == nil {
		return nil, &NullPointerError{What: "receiver of " + mh.member.Key()}
	}
	if !expected.IsInstance(recv) {
		return nil, &IncompatibleReceiverError{Receiver: describeValue(recv), Expected: expected.Name}
	}
	return recv, nil
}

func primAllocateInstance(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	return NewObject(mh.member.Owner), nil
}

func primCheckBase(args []any) (any, error) {
	switch x := args[0].(type) {
	case *Object:
		return x, nil
	case nil:
		return nil, &NullPointerError{What: "field access base"}
	}
	return nil, &ClassCastError{From: describeValue(args[0]), To: ObjectClass.Name}
}

func primStaticBase(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	return mh.member.Owner, nil
}

func primStaticBaseEnsureInit(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	if err := ensureInitialized(mh); err != nil {
		return nil, err
	}
	return mh.member.Owner, nil
}

func primCollectArguments(args []any) (any, error) {
	a := &Array{class: ObjectArrayClass, Elems: make([]any, len(args))}
	copy(a.Elems, args)
	return a, nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// primCheckCast(value, class)
func primCheckCast(args []any) (any, error) {
	return checkCast(args[0], args[1].(*Class))
}

// primBox(value, primitiveClass) boxes a basic value declared as the given
// primitive class.
func primBox(args []any) (any, error) {
	v, err := fromBasicValue(args[0], args[1].(*Class))
	if err != nil {
		return nil, err
	}
	return Box(v), nil
}

// primUnbox(reference, primitiveClass)
func primUnbox(args []any) (any, error) {
	c := args[1].(*Class)
	v, err := unboxTo(args[0], c)
	if err != nil {
		return nil, err
	}
	return toBasicValue(v, BasicTypeOf(c))
}

// primWiden(value, primitiveClass)
func primWiden(args []any) (any, error) {
	return toBasicValue(args[0], BasicTypeOf(args[1].(*Class)))
}

// primZero(class)
func primZero(args []any) (any, error) {
	return BasicTypeOf(args[0].(*Class)).Zero(), nil
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// primCheckSpreadArgument(array, length)
func primCheckSpreadArgument(args []any) (any, error) {
	n := args[1].(int)
	switch a := args[0].(type) {
	case nil:
		if n == 0 {
			return nil, nil
		}
		return nil, &NullPointerError{What: "spread array"}
	case *Array:
		if a.Len() != n {
			return nil, &IllegalArgumentError{
				Msg: "array is not of length " + strconv.Itoa(n) + " (got " + strconv.Itoa(a.Len()) + ")",
			}
		}
		return a, nil
	}
	return nil, &ClassCastError{From: describeValue(args[0]), To: ObjectArrayClass.Name}
}

// primArrayElement(array, index, elementClass) reads one element converted
// to the basic representation of the slot it feeds.
func primArrayElement(args []any) (any, error) {
	a := args[0].(*Array)
	i := args[1].(int)
	c := args[2].(*Class)
	v := a.Elems[i]
	if c.IsPrimitive() {
		if primitiveKindOf(v) == KindReference {
			u, err := unboxTo(v, c)
			if err != nil {
				return nil, err
			}
			v = u
		}
		return toBasicValue(v, BasicTypeOf(c))
	}
	v = Box(v)
	return checkCast(v, c)
}

// primCollectArray(elementClass, values...) gathers trailing arguments into
// a fresh array.
func primCollectArray(args []any) (any, error) {
	elem := args[0].(*Class)
	a := NewArray(elem, len(args)-1)
	for i, v := range args[1:] {
		var err error
		if elem.IsPrimitive() {
			v, err = fromBasicValue(v, elem)
		} else {
			v, err = checkCast(v, elem)
		}
		if err != nil {
			return nil, err
		}
		a.Elems[i] = v
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Call sites and invokers
// ---------------------------------------------------------------------------

func primGetCallSiteTarget(args []any) (any, error) {
	site, ok := args[0].(*CallSite)
	if !ok {
		if args[0] == nil {
			return nil, &NullPointerError{What: "call site"}
		}
		return nil, &ClassCastError{From: describeValue(args[0]), To: CallSiteClass.Name}
	}
	return site.Target(), nil
}

// primCheckExactType(handle, signature)
func primCheckExactType(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	want := args[1].(*Signature)
	if mh.typ != want {
		return nil, &WrongMethodTypeError{Have: mh.typ.Descriptor(), Want: want.Descriptor()}
	}
	return mh, nil
}

// primCheckGenericType(handle, signature) adapts the handle to the
// signature it is being invoked with.
func primCheckGenericType(args []any) (any, error) {
	mh, err := asHandle(args[0])
	if err != nil {
		return nil, err
	}
	return mh.AsType(args[1].(*Signature))
}
