package vm

import (
	"errors"
	"testing"
)

func TestConstantCallSite(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join := findText(t, rt, c, "join", sigStringString)
	swap := findText(t, rt, c, "swap", sigStringString)

	cs, err := NewConstantCallSite(join)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Type() != sigStringString || cs.Kind() != ConstantCallSite {
		t.Errorf("site = %s %s", cs.Kind(), cs.Type())
	}
	var uoe *UnsupportedOperationError
	if err := cs.SetTarget(swap); !errors.As(err, &uoe) {
		t.Errorf("expected UnsupportedOperationError, got %v", err)
	}
	if cs.Target() != join {
		t.Error("constant site target changed")
	}

	var npe *NullPointerError
	if _, err := NewCallSite(MutableCallSite, nil); !errors.As(err, &npe) {
		t.Errorf("nil target: expected NullPointerError, got %v", err)
	}
}

func TestMutableCallSiteSetTarget(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join := findText(t, rt, c, "join", sigStringString)
	swap := findText(t, rt, c, "swap", sigStringString)
	twice := findText(t, rt, c, "twice", MustIntern(IntClass, IntClass))

	for _, kind := range []CallSiteKind{MutableCallSite, VolatileCallSite} {
		t.Run(kind.String(), func(t *testing.T) {
			cs, err := NewCallSite(kind, join)
			if err != nil {
				t.Fatal(err)
			}
			if err := cs.SetTarget(swap); err != nil {
				t.Fatalf("SetTarget: %v", err)
			}
			if cs.Target() != swap {
				t.Error("target not replaced")
			}

			var wmt *WrongMethodTypeError
			if err := cs.SetTarget(twice); !errors.As(err, &wmt) {
				t.Errorf("expected WrongMethodTypeError, got %v", err)
			}
			// An adaptable type is still the wrong type.
			view, _ := join.AsType(MustIntern(ObjectClass, StringClass, StringClass))
			if err := cs.SetTarget(view); !errors.As(err, &wmt) {
				t.Errorf("expected WrongMethodTypeError, got %v", err)
			}
			var npe *NullPointerError
			if err := cs.SetTarget(nil); !errors.As(err, &npe) {
				t.Errorf("expected NullPointerError, got %v", err)
			}
			if cs.Target() != swap {
				t.Error("a rejected SetTarget must leave the target alone")
			}
		})
	}
}

func TestDynamicInvokerFollowsTarget(t *testing.T) {
	rt := NewRuntime(Options{})
	c := textClass()
	join := findText(t, rt, c, "join", sigStringString)
	swap := findText(t, rt, c, "swap", sigStringString)

	cs, err := NewCallSite(MutableCallSite, join)
	if err != nil {
		t.Fatal(err)
	}
	dyn, err := cs.DynamicInvoker(rt)
	if err != nil {
		t.Fatal(err)
	}
	if dyn.Type() != cs.Type() {
		t.Errorf("dynamic invoker type = %s", dyn.Type())
	}
	if dyn.Form().Kind() != FormDynamicInvoker {
		t.Errorf("form = %s", dyn.Form().Kind())
	}

	res, err := dyn.Invoke("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if res != "ab" {
		t.Errorf("before retarget = %v", res)
	}
	if err := cs.SetTarget(swap); err != nil {
		t.Fatal(err)
	}
	res, err = dyn.Invoke("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if res != "ba" {
		t.Errorf("after retarget = %v", res)
	}
}
