package vm

import (
	"errors"
	"testing"
)

func TestExactInvoker(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	twice := findText(t, rt, c, "twice", MustIntern(IntClass, IntClass))
	join := findText(t, rt, c, "join", sigStringString)

	sig := MustIntern(IntClass, IntClass)
	inv, err := rt.ExactInvoker(sig)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Type() != MustIntern(IntClass, MethodHandleClass, IntClass) {
		t.Errorf("invoker type = %s", inv.Type())
	}
	if inv.Form().Kind() != FormExactInvoker {
		t.Errorf("form = %s", inv.Form().Kind())
	}
	res, err := inv.Invoke(twice, int32(5))
	if err != nil {
		t.Fatal(err)
	}
	if res != int32(10) {
		t.Errorf("result = %v", res)
	}

	var wmt *WrongMethodTypeError
	if _, err := inv.Invoke(join, int32(5)); !errors.As(err, &wmt) {
		t.Errorf("expected WrongMethodTypeError, got %v", err)
	}
	var npe *NullPointerError
	if _, err := inv.Invoke(nil, int32(5)); !errors.As(err, &npe) {
		t.Errorf("null target: expected NullPointerError, got %v", err)
	}

	again, _ := rt.ExactInvoker(sig)
	if again != inv {
		t.Error("invokers are cached per signature")
	}
}

func TestGenericInvoker(t *testing.T) {
	rt := NewRuntime(Options{})
	twice := findText(t, rt, textClass(), "twice", MustIntern(IntClass, IntClass))

	inv, err := rt.GenericInvoker(MustIntern(ObjectClass, IntegerBoxClass))
	if err != nil {
		t.Fatal(err)
	}
	if inv.Form().Kind() != FormGenericInvoker {
		t.Errorf("form = %s", inv.Form().Kind())
	}
	res, err := inv.Invoke(twice, ValueOfInt(21))
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := res.(*Boxed); !ok || b.Value() != int32(42) {
		t.Errorf("result = %#v", res)
	}

	exact, _ := rt.ExactInvoker(MustIntern(ObjectClass, IntegerBoxClass))
	if exact == inv {
		t.Error("exact and generic invokers are cached separately")
	}

	// A target that cannot be adapted fails at the call.
	join := findText(t, rt, textClass(), "join", sigStringString)
	var wmt *WrongMethodTypeError
	if _, err := inv.Invoke(join, ValueOfInt(1)); !errors.As(err, &wmt) {
		t.Errorf("expected WrongMethodTypeError, got %v", err)
	}
}

func TestInvokerArityLimit(t *testing.T) {
	rt := NewRuntime(Options{})
	ps := make([]*Class, MaxInvokerArity+1)
	for i := range ps {
		ps[i] = IntClass
	}
	sig, err := Intern(VoidClass, ps...)
	if err != nil {
		t.Fatal(err)
	}
	var iae *IllegalArgumentError
	if _, err := rt.ExactInvoker(sig); !errors.As(err, &iae) {
		t.Errorf("expected IllegalArgumentError, got %v", err)
	}
}
