package vm

import (
	"errors"
	"testing"
)

func TestIdentity(t *testing.T) {
	rt := NewRuntime(Options{})
	tests := []struct {
		class *Class
		arg   any
	}{
		{IntClass, int32(7)},
		{LongClass, int64(-3)},
		{DoubleClass, 2.5},
		{BooleanClass, true},
		{StringClass, "same"},
	}
	for _, tt := range tests {
		id, err := rt.Identity(tt.class)
		if err != nil {
			t.Fatalf("Identity(%s): %v", tt.class, err)
		}
		if id.Type() != MustIntern(tt.class, tt.class) {
			t.Errorf("Identity(%s) type = %s", tt.class, id.Type())
		}
		res, err := id.Invoke(tt.arg)
		if err != nil {
			t.Errorf("Identity(%s): %v", tt.class, err)
			continue
		}
		if res != tt.arg {
			t.Errorf("Identity(%s)(%v) = %v", tt.class, tt.arg, res)
		}
	}

	var iae *IllegalArgumentError
	if _, err := rt.Identity(VoidClass); !errors.As(err, &iae) {
		t.Errorf("Identity(void): expected IllegalArgumentError, got %v", err)
	}
}

func TestIdentitySharesForms(t *testing.T) {
	rt := NewRuntime(Options{})
	a, _ := rt.Identity(StringClass)
	b, _ := rt.Identity(ObjectClass)
	if a.Form() != b.Form() {
		t.Error("identities of the same basic type share a form")
	}
	c, _ := rt.Identity(IntClass)
	if a.Form() == c.Form() {
		t.Error("int and reference identities need different forms")
	}
}

func TestZero(t *testing.T) {
	rt := NewRuntime(Options{})
	tests := []struct {
		class *Class
		want  any
	}{
		{IntClass, int32(0)},
		{LongClass, int64(0)},
		{FloatClass, float32(0)},
		{DoubleClass, float64(0)},
		{BooleanClass, false},
		{CharClass, uint16(0)},
		{StringClass, nil},
		{VoidClass, nil},
	}
	for _, tt := range tests {
		z, err := rt.Zero(tt.class)
		if err != nil {
			t.Fatalf("Zero(%s): %v", tt.class, err)
		}
		res, err := z.Invoke()
		if err != nil {
			t.Errorf("Zero(%s): %v", tt.class, err)
			continue
		}
		if res != tt.want {
			t.Errorf("Zero(%s) = %#v, want %#v", tt.class, res, tt.want)
		}
	}
}

func TestConstant(t *testing.T) {
	rt := NewRuntime(Options{})

	k, err := rt.Constant(StringClass, "k")
	if err != nil {
		t.Fatal(err)
	}
	if k.Type() != MustIntern(StringClass) {
		t.Errorf("type = %s", k.Type())
	}
	if res, _ := k.Invoke(); res != "k" {
		t.Errorf("constant = %v", res)
	}

	// The value is converted to the declared type up front.
	three, err := rt.Constant(IntClass, int8(3))
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := three.Invoke(); res != int32(3) {
		t.Errorf("constant = %#v", res)
	}
	long, err := rt.Constant(LongClass, int32(5))
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := long.Invoke(); res != int64(5) {
		t.Errorf("constant = %#v", res)
	}
	if long.Species().Key() != "J" {
		t.Errorf("long constant species = %s", long.Species().Key())
	}

	var cce *ClassCastError
	if _, err := rt.Constant(IntClass, "x"); !errors.As(err, &cce) {
		t.Errorf("expected ClassCastError, got %v", err)
	}
	var iae *IllegalArgumentError
	if _, err := rt.Constant(VoidClass, nil); !errors.As(err, &iae) {
		t.Errorf("void constant: expected IllegalArgumentError, got %v", err)
	}
}
