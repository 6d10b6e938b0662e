package vm

import (
	"errors"
	"sync/atomic"
	"testing"
)

// routine declares code as a static method of its own class and returns a
// handle for it.
func routine(t *testing.T, rt *Runtime, name string, sig *Signature, code NativeFunc) *MethodHandle {
	t.Helper()
	c := NewClass("app.Bootstraps$"+name, ObjectClass, ModPublic)
	c.AddMethod(name, sig, ModPublic|ModStatic, code)
	mh, err := rt.Lookup(NewCaller(c)).FindStatic(c, name, sig)
	if err != nil {
		t.Fatalf("FindStatic %s: %v", name, err)
	}
	return mh
}

// pushSig is (Caller, String, MethodType, Object x n)CallSite.
func pushSig(n int) *Signature {
	ps := []*Class{CallerClass, StringClass, MethodTypeClass}
	for i := 0; i < n; i++ {
		ps = append(ps, ObjectClass)
	}
	return MustIntern(CallSiteClass, ps...)
}

var constantSig = MustIntern(ObjectClass, CallerClass, StringClass, ClassClass, ObjectClass)

func testCaller() *Caller {
	return NewCaller(NewClass("app.Main", ObjectClass, ModPublic))
}

func TestBootstrapPlainRoutine(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)
	caller := testCaller()

	var gotName string
	var gotType *Signature
	var gotCaller *Caller
	r := routine(t, rt, "plain", bootstrapPlainType, func(args []any) (any, error) {
		gotCaller = args[0].(*Caller)
		gotName = args[1].(string)
		gotType = args[2].(*Signature)
		return NewConstantCallSite(join)
	})

	cs, err := rt.bootstrapCallSite(caller, r, "concat", sigStringString, NoStaticArgs())
	if err != nil {
		t.Fatal(err)
	}
	if cs.Target() != join {
		t.Error("unexpected target")
	}
	if gotCaller != caller || gotName != "concat" || gotType != sigStringString {
		t.Errorf("routine saw %v %q %v", gotCaller, gotName, gotType)
	}
}

func TestBootstrapResolvedStaticArgs(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	var seen []any
	r := routine(t, rt, "push3", pushSig(3), func(args []any) (any, error) {
		seen = append([]any(nil), args[3:]...)
		return NewConstantCallSite(join)
	})
	if _, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString,
		ResolvedStaticArgs("a", int32(300), nil)); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != "a" || seen[2] != nil {
		t.Fatalf("statics = %v", seen)
	}
	if b, ok := seen[1].(*Boxed); !ok || b.Value() != int32(300) {
		t.Errorf("static 1 = %#v", seen[1])
	}

	// Too few statics for the routine is a bootstrap failure.
	_, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString, SingleStaticArg("a"))
	var ble *BootstrapLinkageError
	if !errors.As(err, &ble) {
		t.Errorf("expected BootstrapLinkageError, got %v", err)
	}
}

func TestBootstrapDeferredStaticArgs(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	fetched := 0
	args := DeferredStaticArgs(3, func(i int) (any, error) {
		fetched++
		return []string{"x", "y", "z"}[i], nil
	})
	if args.Kind() != StaticArgsDeferred || args.Len() != 3 {
		t.Errorf("args = %s", describeStaticArgs(args))
	}

	var seen []any
	r := routine(t, rt, "push3", pushSig(3), func(a []any) (any, error) {
		seen = append([]any(nil), a[3:]...)
		return NewConstantCallSite(join)
	})
	if _, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString, args); err != nil {
		t.Fatal(err)
	}
	if fetched != 3 {
		t.Errorf("fetched %d times, want 3", fetched)
	}
	if len(seen) != 3 || seen[0] != "x" || seen[2] != "z" {
		t.Errorf("statics = %v", seen)
	}
}

func TestBootstrapPullRoutine(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)
	pullSig := MustIntern(CallSiteClass, CallerClass, BootstrapCallInfoClass)

	var first any
	var size int
	var info BootstrapCallInfo
	r := routine(t, rt, "pull", pullSig, func(args []any) (any, error) {
		info = args[1].(BootstrapCallInfo)
		size = info.Size()
		v, err := info.Get(0)
		if err != nil {
			return nil, err
		}
		first = v
		return NewConstantCallSite(join)
	})
	if !isPullRoutine(r) {
		t.Fatal("expected a pull routine")
	}

	fetched := 0
	args := DeferredStaticArgs(10, func(i int) (any, error) {
		fetched++
		return int32(i), nil
	})
	if _, err := rt.bootstrapCallSite(testCaller(), r, "lazy", sigStringString, args); err != nil {
		t.Fatal(err)
	}
	if size != 10 || first != int32(0) {
		t.Errorf("size = %d, first = %v", size, first)
	}
	if fetched >= 10 {
		t.Errorf("pull routine fetched %d of 10 arguments", fetched)
	}
	if info.InvocationName() != "lazy" || info.InvocationType() != sigStringString {
		t.Errorf("info = %s %v", info.InvocationName(), info.InvocationType())
	}

	// Resolved arguments reach a pull routine without fetching.
	if _, err := rt.bootstrapCallSite(testCaller(), r, "eager", sigStringString,
		ResolvedStaticArgs("only")); err != nil {
		t.Fatal(err)
	}
	if first != "only" || size != 1 {
		t.Errorf("first = %v, size = %d", first, size)
	}
}

func TestBootstrapReboxesCallSiteArguments(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	var seen any
	r := routine(t, rt, "push1", pushSig(1), func(args []any) (any, error) {
		seen = args[3]
		return NewConstantCallSite(join)
	})

	small := NewInteger(5)
	if _, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString, SingleStaticArg(small)); err != nil {
		t.Fatal(err)
	}
	if seen != ValueOfInt(5) {
		t.Error("a byte-range Integer should arrive as the canonical box")
	}

	large := NewInteger(500)
	if _, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString, SingleStaticArg(large)); err != nil {
		t.Fatal(err)
	}
	if seen != large {
		t.Error("an Integer outside the byte range keeps its identity")
	}

	deferred := DeferredStaticArgs(1, func(int) (any, error) { return NewInteger(-7), nil })
	if _, err := rt.bootstrapCallSite(testCaller(), r, "x", sigStringString, deferred); err != nil {
		t.Fatal(err)
	}
	if seen != ValueOfInt(-7) {
		t.Error("deferred arguments are reboxed too")
	}
}

func TestDynamicConstantKeepsIdentity(t *testing.T) {
	rt := NewRuntime(Options{})
	echo := routine(t, rt, "echo", constantSig, func(args []any) (any, error) {
		return args[3], nil
	})

	small := NewInteger(5)
	v, err := rt.ResolveDynamicConstant(testCaller(), echo, "k", ObjectClass, SingleStaticArg(small))
	if err != nil {
		t.Fatal(err)
	}
	if v != small {
		t.Error("dynamic constants receive static arguments exactly as offered")
	}
	if v == ValueOfInt(5) {
		t.Error("the constant path must not rebox")
	}
}

func TestResolveDynamicConstant(t *testing.T) {
	rt := NewRuntime(Options{})
	seven := routine(t, rt, "seven", MustIntern(ObjectClass, CallerClass, StringClass, ClassClass),
		func(args []any) (any, error) {
			return int32(7), nil
		})

	v, err := rt.ResolveDynamicConstant(testCaller(), seven, "n", LongClass, NoStaticArgs())
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(7) {
		t.Errorf("constant = %#v, want int64(7)", v)
	}

	_, err = rt.ResolveDynamicConstant(testCaller(), seven, "s", StringClass, NoStaticArgs())
	var ble *BootstrapLinkageError
	if !errors.As(err, &ble) {
		t.Fatalf("expected BootstrapLinkageError, got %v", err)
	}
	var cce *ClassCastError
	if !errors.As(err, &cce) {
		t.Errorf("expected a ClassCastError cause, got %v", ble.Cause)
	}
	if ble.Site != "s:String" {
		t.Errorf("site = %q", ble.Site)
	}

	var iae *IllegalArgumentError
	if _, err := rt.ResolveDynamicConstant(testCaller(), seven, "v", VoidClass, NoStaticArgs()); !errors.As(err, &iae) {
		t.Errorf("void constant: expected IllegalArgumentError, got %v", err)
	}
}

func TestBootstrapErrors(t *testing.T) {
	rt := NewRuntime(Options{})
	caller := testCaller()
	failing := func(err error) *MethodHandle {
		return routine(t, rt, "fail", bootstrapPlainType, func([]any) (any, error) { return nil, err })
	}

	cause := errors.New("no target for you")
	_, err := rt.bootstrapCallSite(caller, failing(cause), "op", sigStringString, NoStaticArgs())
	var ble *BootstrapLinkageError
	if !errors.As(err, &ble) {
		t.Fatalf("expected BootstrapLinkageError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
	if ble.Site != "op"+sigStringString.Descriptor() {
		t.Errorf("site = %q", ble.Site)
	}

	// Engine errors pass through unwrapped.
	_, err = rt.bootstrapCallSite(caller, failing(&ResourceError{Resource: "code", Limit: 1}), "op",
		sigStringString, NoStaticArgs())
	var re *ResourceError
	if !errors.As(err, &re) || errors.As(err, &ble) {
		t.Errorf("expected a bare ResourceError, got %v", err)
	}

	// An existing bootstrap error is not wrapped twice.
	inner := &BootstrapLinkageError{Site: "inner", Cause: cause}
	_, err = rt.bootstrapCallSite(caller, failing(inner), "op", sigStringString, NoStaticArgs())
	if err != inner {
		t.Errorf("err = %v, want the inner error", err)
	}

	// A routine producing something other than a call site.
	notSite := routine(t, rt, "notSite", bootstrapPlainType, func([]any) (any, error) { return "site", nil })
	_, err = rt.bootstrapCallSite(caller, notSite, "op", sigStringString, NoStaticArgs())
	var cce *ClassCastError
	if !errors.As(err, &ble) || !errors.As(err, &cce) {
		t.Errorf("expected a wrapped ClassCastError, got %v", err)
	}

	nilSite := routine(t, rt, "nilSite", bootstrapPlainType, func([]any) (any, error) { return nil, nil })
	if _, err = rt.bootstrapCallSite(caller, nilSite, "op", sigStringString, NoStaticArgs()); !errors.As(err, &ble) {
		t.Errorf("nil call site: expected BootstrapLinkageError, got %v", err)
	}

	var npe *NullPointerError
	if _, err := rt.bootstrapCallSite(caller, nil, "op", sigStringString, NoStaticArgs()); !errors.As(err, &npe) {
		t.Errorf("nil routine: expected NullPointerError, got %v", err)
	}
}

func TestBootstrapMetafactoryShape(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join := findText(t, rt, c, "join", sigStringString)

	sam := MustIntern(ObjectClass, ObjectClass, ObjectClass)
	var gotImpl *MethodHandle
	var gotSam, gotInst *Signature
	r := routine(t, rt, "metafactory", metafactoryType, func(args []any) (any, error) {
		gotSam = args[3].(*Signature)
		gotImpl = args[4].(*MethodHandle)
		gotInst = args[5].(*Signature)
		return NewConstantCallSite(gotImpl)
	})
	cs, err := rt.bootstrapCallSite(testCaller(), r, "apply", sigStringString,
		ResolvedStaticArgs(sam, join, sigStringString))
	if err != nil {
		t.Fatal(err)
	}
	if gotSam != sam || gotImpl != join || gotInst != sigStringString {
		t.Errorf("routine saw %v %v %v", gotSam, gotImpl, gotInst)
	}
	if cs.Target() != join {
		t.Error("unexpected target")
	}

	// Statics of the wrong kinds go through the generic path, which
	// rejects them the same way a direct call would.
	_, err = rt.bootstrapCallSite(testCaller(), r, "apply", sigStringString,
		ResolvedStaticArgs("not a type", join, sigStringString))
	var cce *ClassCastError
	if !errors.As(err, &cce) {
		t.Errorf("expected ClassCastError, got %v", err)
	}
}

func TestBootstrapConcatShape(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	var recipe string
	var consts *Array
	fixed := routine(t, rt, "concat", concatFactoryType, func(args []any) (any, error) {
		recipe = args[3].(string)
		consts = args[4].(*Array)
		return NewConstantCallSite(join)
	})
	r, err := fixed.AsVarargsCollector()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.bootstrapCallSite(testCaller(), r, "makeConcat", sigStringString,
		ResolvedStaticArgs("\x01-\x01", "k", int32(3))); err != nil {
		t.Fatal(err)
	}
	if recipe != "\x01-\x01" {
		t.Errorf("recipe = %q", recipe)
	}
	if consts == nil || consts.Len() != 2 || consts.Elems[0] != "k" || consts.Elems[1] != ValueOfInt(3) {
		t.Errorf("constants = %v", consts)
	}
}

func TestBootstrapManyStaticArgs(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	varSig := MustIntern(CallSiteClass, CallerClass, StringClass, MethodTypeClass, ObjectArrayClass)
	var got int
	fixed := routine(t, rt, "many", varSig, func(args []any) (any, error) {
		got = args[3].(*Array).Len()
		return NewConstantCallSite(join)
	})
	r, err := fixed.AsVarargsCollector()
	if err != nil {
		t.Fatal(err)
	}

	const n = 300
	var calls atomic.Int32
	args := DeferredStaticArgs(n, func(i int) (any, error) {
		calls.Add(1)
		return int32(i), nil
	})
	if _, err := rt.bootstrapCallSite(testCaller(), r, "wide", sigStringString, args); err != nil {
		t.Fatal(err)
	}
	if got != n {
		t.Errorf("routine received %d statics, want %d", got, n)
	}
	if calls.Load() != n {
		t.Errorf("fetched %d times, want %d", calls.Load(), n)
	}
}
