package vm

import (
	"errors"
	"strconv"
	"testing"
)

// textClass declares a handful of static string helpers.
func textClass() *Class {
	c := NewClass("util.Text", ObjectClass, ModPublic)
	c.AddMethod("join", MustIntern(StringClass, StringClass, StringClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			return args[0].(string) + args[1].(string), nil
		})
	c.AddMethod("swap", MustIntern(StringClass, StringClass, StringClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			return args[1].(string) + args[0].(string), nil
		})
	c.AddMethod("join3", MustIntern(StringClass, StringClass, StringClass, StringClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			return args[0].(string) + args[1].(string) + args[2].(string), nil
		})
	c.AddMethod("repeat", MustIntern(StringClass, StringClass, IntClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			s := ""
			for i := int32(0); i < args[1].(int32); i++ {
				s += args[0].(string)
			}
			return s, nil
		})
	c.AddMethod("count", MustIntern(StringClass, StringClass, ObjectArrayClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			n := 0
			if a, ok := args[1].(*Array); ok {
				n = a.Len()
			}
			return args[0].(string) + ":" + strconv.Itoa(n), nil
		})
	c.AddMethod("twice", MustIntern(IntClass, IntClass), ModPublic|ModStatic,
		func(args []any) (any, error) {
			return args[0].(int32) * 2, nil
		})
	return c
}

func findText(t *testing.T, rt *Runtime, c *Class, name string, sig *Signature) *MethodHandle {
	t.Helper()
	mh, err := rt.Lookup(NewCaller(c)).FindStatic(c, name, sig)
	if err != nil {
		t.Fatalf("FindStatic %s: %v", name, err)
	}
	return mh
}

var (
	sigStringString  = MustIntern(StringClass, StringClass, StringClass)
	sigStringString3 = MustIntern(StringClass, StringClass, StringClass, StringClass)
)

func TestBindTo(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join := findText(t, rt, c, "join", sigStringString)

	bound, err := join.BindTo("x")
	if err != nil {
		t.Fatal(err)
	}
	if bound.Type() != MustIntern(StringClass, StringClass) {
		t.Errorf("bound type = %s", bound.Type())
	}
	if bound.Species() == nil || bound.Species().Key() != "LL" {
		t.Errorf("species = %v", bound.Species())
	}
	if ClassOf(bound) != bound.Species().Carrier() {
		t.Error("a bound handle's class is its carrier")
	}
	if bound.BoundValue(0) != join || bound.BoundValue(1) != "x" {
		t.Errorf("bound values = %v, %v", bound.BoundValue(0), bound.BoundValue(1))
	}
	res, err := bound.Invoke("y")
	if err != nil {
		t.Fatal(err)
	}
	if res != "xy" {
		t.Errorf("bound(\"y\") = %v", res)
	}

	twice := findText(t, rt, c, "twice", MustIntern(IntClass, IntClass))
	var iae *IllegalArgumentError
	if _, err := twice.BindTo(int32(1)); !errors.As(err, &iae) {
		t.Errorf("BindTo a primitive parameter: expected IllegalArgumentError, got %v", err)
	}
}

func TestBindToExtendsCarrier(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join3 := findText(t, rt, c, "join3", sigStringString3)

	first, err := join3.BindTo("a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := first.BindTo("b")
	if err != nil {
		t.Fatal(err)
	}
	if second.Species().Key() != "LLL" {
		t.Errorf("species = %s, want LLL", second.Species().Key())
	}
	if second.BoundValue(0) != join3 {
		t.Error("extending a bound handle keeps the original target")
	}
	if second.BoundCount() != 3 {
		t.Errorf("BoundCount = %d", second.BoundCount())
	}
	res, err := second.Invoke("c")
	if err != nil {
		t.Fatal(err)
	}
	if res != "abc" {
		t.Errorf("result = %v, want abc", res)
	}
	// The first handle is unaffected.
	if res, _ := first.Invoke("y", "z"); res != "ayz" {
		t.Errorf("first = %v", res)
	}
}

func TestInsertArguments(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	repeat := findText(t, rt, c, "repeat", MustIntern(StringClass, StringClass, IntClass))

	three, err := repeat.InsertArguments(1, int8(3))
	if err != nil {
		t.Fatal(err)
	}
	if three.Species().Key() != "LI" {
		t.Errorf("species = %s, want LI", three.Species().Key())
	}
	res, err := three.Invoke("ab")
	if err != nil {
		t.Fatal(err)
	}
	if res != "ababab" {
		t.Errorf("result = %v", res)
	}

	all, err := repeat.InsertArguments(0, "z", int32(2))
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := all.Invoke(); res != "zz" {
		t.Errorf("result = %v", res)
	}

	var cce *ClassCastError
	if _, err := repeat.InsertArguments(1, "three"); !errors.As(err, &cce) {
		t.Errorf("expected ClassCastError, got %v", err)
	}
	var iae *IllegalArgumentError
	if _, err := repeat.InsertArguments(2, int32(1)); !errors.As(err, &iae) {
		t.Errorf("expected IllegalArgumentError, got %v", err)
	}
	if same, _ := repeat.InsertArguments(1); same != repeat {
		t.Error("inserting nothing returns the handle itself")
	}
}

func TestAsTypeView(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	declared := MustIntern(ObjectClass, StringClass, StringClass)
	view, err := join.AsType(declared)
	if err != nil {
		t.Fatal(err)
	}
	if view.Type() != declared {
		t.Errorf("type = %s", view.Type())
	}
	if view.Form() != join.Form() {
		t.Error("a widening return needs no conversion form")
	}
	if again, _ := join.AsType(declared); again != view {
		t.Error("AsType caches its last result")
	}
	if same, _ := join.AsType(sigStringString); same != join {
		t.Error("AsType to the handle's own type returns it")
	}
}

func TestAsTypeConvertCasts(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	generic := MustIntern(ObjectClass, ObjectClass, ObjectClass)
	adapted, err := join.AsType(generic)
	if err != nil {
		t.Fatal(err)
	}
	if adapted.Form().Kind() != FormConvert {
		t.Fatalf("form = %s, want convert", adapted.Form().Kind())
	}
	res, err := adapted.Invoke("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if res != "ab" {
		t.Errorf("result = %v", res)
	}

	other := NewObject(NewClass("test.NotAString", ObjectClass, ModPublic))
	_, err = adapted.Invoke("a", other)
	var cce *ClassCastError
	if !errors.As(err, &cce) {
		t.Fatalf("expected ClassCastError, got %v", err)
	}
	if cce.To != StringClass.Name {
		t.Errorf("cast target = %q", cce.To)
	}
}

func TestAsTypeBoxing(t *testing.T) {
	rt := NewRuntime(Options{})
	twice := findText(t, rt, textClass(), "twice", MustIntern(IntClass, IntClass))

	boxed, err := twice.AsType(MustIntern(ObjectClass, IntegerBoxClass))
	if err != nil {
		t.Fatal(err)
	}
	res, err := boxed.Invoke(ValueOfInt(4))
	if err != nil {
		t.Fatal(err)
	}
	b, ok := res.(*Boxed)
	if !ok || b.Value() != int32(8) {
		t.Fatalf("result = %#v", res)
	}

	var npe *NullPointerError
	if _, err := boxed.Invoke(nil); !errors.As(err, &npe) {
		t.Errorf("unboxing null: expected NullPointerError, got %v", err)
	}

	widened, err := twice.AsType(MustIntern(LongClass, ShortClass))
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := widened.Invoke(int16(21)); res != int64(42) {
		t.Errorf("widened result = %#v", res)
	}

	var wmt *WrongMethodTypeError
	if _, err := twice.AsType(MustIntern(IntClass, LongClass)); !errors.As(err, &wmt) {
		t.Errorf("narrowing: expected WrongMethodTypeError, got %v", err)
	}
}

func TestAsSpreader(t *testing.T) {
	rt := NewRuntime(Options{})
	join := findText(t, rt, textClass(), "join", sigStringString)

	spread, err := join.AsSpreader(0, ObjectArrayClass, 2)
	if err != nil {
		t.Fatal(err)
	}
	if spread.Type() != MustIntern(StringClass, ObjectArrayClass) {
		t.Errorf("type = %s", spread.Type())
	}
	arr := NewArray(ObjectClass, 2)
	arr.Elems[0], arr.Elems[1] = "p", "q"
	res, err := spread.Invoke(arr)
	if err != nil {
		t.Fatal(err)
	}
	if res != "pq" {
		t.Errorf("result = %v", res)
	}

	var iae *IllegalArgumentError
	if _, err := spread.Invoke(NewArray(ObjectClass, 3)); !errors.As(err, &iae) {
		t.Errorf("wrong length: expected IllegalArgumentError, got %v", err)
	}
	var npe *NullPointerError
	if _, err := spread.Invoke(nil); !errors.As(err, &npe) {
		t.Errorf("null array: expected NullPointerError, got %v", err)
	}
	if _, err := join.AsSpreader(0, StringClass, 2); !errors.As(err, &iae) {
		t.Errorf("non-array type: expected IllegalArgumentError, got %v", err)
	}
	if _, err := join.AsSpreader(1, ObjectArrayClass, 2); !errors.As(err, &iae) {
		t.Errorf("range past the end: expected IllegalArgumentError, got %v", err)
	}
}

func TestAsCollector(t *testing.T) {
	rt := NewRuntime(Options{})
	count := findText(t, rt, textClass(), "count", MustIntern(StringClass, StringClass, ObjectArrayClass))

	coll, err := count.AsCollector(1, ObjectArrayClass, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := MustIntern(StringClass, StringClass, ObjectClass, ObjectClass, ObjectClass)
	if coll.Type() != want {
		t.Errorf("type = %s, want %s", coll.Type(), want)
	}
	res, err := coll.Invoke("p", int32(1), "two", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != "p:3" {
		t.Errorf("result = %v", res)
	}

	var wmt *WrongMethodTypeError
	if _, err := count.AsCollector(0, ObjectArrayClass, 1); !errors.As(err, &wmt) {
		t.Errorf("collecting into a String: expected WrongMethodTypeError, got %v", err)
	}
}

func TestAsVarargsCollector(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	count := findText(t, rt, c, "count", MustIntern(StringClass, StringClass, ObjectArrayClass))

	va, err := count.AsVarargsCollector()
	if err != nil {
		t.Fatal(err)
	}
	if !va.IsVarargsCollector() || count.IsVarargsCollector() {
		t.Fatal("only the new handle collects")
	}

	tests := []struct {
		args []any
		want string
	}{
		{[]any{"p"}, "p:0"},
		{[]any{"p", "a"}, "p:1"},
		{[]any{"p", "a", int32(2), 3.0}, "p:3"},
		{[]any{"p", NewArray(ObjectClass, 5)}, "p:5"},
	}
	for _, tt := range tests {
		res, err := va.Invoke(tt.args...)
		if err != nil {
			t.Errorf("Invoke%v: %v", tt.args, err)
			continue
		}
		if res != tt.want {
			t.Errorf("Invoke%v = %v, want %s", tt.args, res, tt.want)
		}
	}

	// Asking for a wider signature collects the trailing parameters.
	spread, err := va.AsType(MustIntern(StringClass, StringClass, StringClass, StringClass))
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := spread.Invoke("q", "x", "y"); res != "q:2" {
		t.Errorf("AsType collector = %v", res)
	}

	fixed := va.AsFixedArity()
	if fixed.IsVarargsCollector() {
		t.Error("AsFixedArity still collects")
	}
	var wmt *WrongMethodTypeError
	if _, err := fixed.Invoke("p", "a", "b"); !errors.As(err, &wmt) {
		t.Errorf("fixed arity: expected WrongMethodTypeError, got %v", err)
	}

	join := findText(t, rt, c, "join", sigStringString)
	var iae *IllegalArgumentError
	if _, err := join.AsVarargsCollector(); !errors.As(err, &iae) {
		t.Errorf("no trailing array: expected IllegalArgumentError, got %v", err)
	}
}
