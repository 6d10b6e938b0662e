package vm

import (
	"errors"
	"sync"
	"testing"
)

func TestInternIdentity(t *testing.T) {
	a := MustIntern(StringClass, IntClass, ObjectClass)
	b := MustIntern(StringClass, IntClass, ObjectClass)
	if a != b {
		t.Error("structurally equal signatures should be the same pointer")
	}
	c := MustIntern(StringClass, ObjectClass, IntClass)
	if a == c {
		t.Error("parameter order should matter")
	}
	if got := a.Descriptor(); got != "(int,Object)String" {
		t.Errorf("Descriptor = %q", got)
	}
}

func TestInternConcurrent(t *testing.T) {
	const n = 16
	results := make([]*Signature, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MustIntern(LongClass, StringClass, DoubleClass, BooleanClass)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d interned a different signature", i)
		}
	}
}

func TestInternRejectsVoidParameter(t *testing.T) {
	_, err := Intern(IntClass, ObjectClass, VoidClass)
	var ise *InvalidSignatureError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidSignatureError, got %v", err)
	}
}

func TestInternSlotLimit(t *testing.T) {
	ps := make([]*Class, MaxJVMArity)
	for i := range ps {
		ps[i] = IntClass
	}
	s, err := Intern(VoidClass, ps...)
	if err != nil {
		t.Fatalf("255 int slots should be accepted: %v", err)
	}
	if s.ParameterSlotCount() != MaxJVMArity {
		t.Errorf("slots = %d", s.ParameterSlotCount())
	}

	// 128 longs need 256 slots.
	wide := make([]*Class, 128)
	for i := range wide {
		wide[i] = LongClass
	}
	var ise *InvalidSignatureError
	if _, err := Intern(VoidClass, wide...); !errors.As(err, &ise) {
		t.Errorf("expected InvalidSignatureError for 256 slots, got %v", err)
	}
}

func TestBasicForm(t *testing.T) {
	s := MustIntern(BooleanClass, StringClass, ShortClass, LongClass, FloatClass, CharClass)
	b := s.BasicForm()
	if b.BasicString() != "LIJFI_I" {
		t.Errorf("BasicString = %q", b.BasicString())
	}
	if !b.IsBasic() || s.IsBasic() {
		t.Error("IsBasic mismatch")
	}
	if s.BasicString() != b.BasicString() {
		t.Error("a signature and its basic form should share a shape name")
	}

	e := s.Erase()
	if e.ParameterType(0) != ObjectClass || e.ParameterType(1) != ShortClass {
		t.Errorf("Erase = %s", e)
	}
}

func TestParseBasicSignature(t *testing.T) {
	tests := []struct {
		text string
		want *Signature
	}{
		{"_V", MustIntern(VoidClass)},
		{"LL_L", MustIntern(ObjectClass, ObjectClass, ObjectClass)},
		{"L I J_D", MustIntern(DoubleClass, ObjectClass, IntClass, LongClass)},
	}
	for _, tt := range tests {
		got, err := ParseBasicSignature(tt.text)
		if err != nil {
			t.Errorf("ParseBasicSignature(%q): %v", tt.text, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBasicSignature(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}

	for _, bad := range []string{"", "LL", "LL_", "LQ_L", "LV_L", "L_LL"} {
		if _, err := ParseBasicSignature(bad); err == nil {
			t.Errorf("ParseBasicSignature(%q) should fail", bad)
		}
	}
}

func TestDerivedSignatures(t *testing.T) {
	s := MustIntern(IntClass, StringClass, LongClass)

	ins, err := s.InsertParameterTypes(1, ObjectClass, DoubleClass)
	if err != nil {
		t.Fatal(err)
	}
	if ins != MustIntern(IntClass, StringClass, ObjectClass, DoubleClass, LongClass) {
		t.Errorf("InsertParameterTypes = %s", ins)
	}

	dropped, err := ins.DropParameterTypes(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != s {
		t.Errorf("DropParameterTypes = %s, want %s", dropped, s)
	}

	changed, err := s.ChangeParameterType(0, ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	if changed.ParameterType(0) != ObjectClass {
		t.Errorf("ChangeParameterType = %s", changed)
	}

	ret, _ := s.ChangeReturnType(VoidClass)
	if ret.ReturnType() != VoidClass || ret.ParameterCount() != 2 {
		t.Errorf("ChangeReturnType = %s", ret)
	}

	if _, err := s.DropParameterTypes(1, 5); err == nil {
		t.Error("out of range drop should fail")
	}
	if _, err := s.InsertParameterTypes(3, IntClass); err == nil {
		t.Error("out of range insert should fail")
	}
}

func TestGenericSignature(t *testing.T) {
	g, err := GenericSignature(3)
	if err != nil {
		t.Fatal(err)
	}
	if !g.IsGeneric() || g.ParameterCount() != 3 {
		t.Errorf("GenericSignature(3) = %s", g)
	}
	if MustIntern(ObjectClass, IntClass).IsGeneric() {
		t.Error("(int)Object is not generic")
	}
}

func TestIsAdaptableTo(t *testing.T) {
	tests := []struct {
		name     string
		target   *Signature
		declared *Signature
		want     bool
	}{
		{"same", MustIntern(IntClass, IntClass), MustIntern(IntClass, IntClass), true},
		{"widen arg", MustIntern(LongClass, LongClass), MustIntern(LongClass, IntClass), true},
		{"narrow arg", MustIntern(IntClass, IntClass), MustIntern(IntClass, LongClass), false},
		{"box return", MustIntern(IntClass), MustIntern(ObjectClass), true},
		{"unbox arg", MustIntern(VoidClass, IntClass), MustIntern(VoidClass, IntegerBoxClass), true},
		{"cast arg", MustIntern(VoidClass, StringClass), MustIntern(VoidClass, ObjectClass), true},
		{"drop return", MustIntern(StringClass), MustIntern(VoidClass), true},
		{"arity", MustIntern(VoidClass, IntClass), MustIntern(VoidClass), false},
		{"box into wrong wrapper", MustIntern(VoidClass, LongBoxClass), MustIntern(VoidClass, IntClass), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.IsAdaptableTo(tt.declared); got != tt.want {
				t.Errorf("%s.IsAdaptableTo(%s) = %v, want %v", tt.target, tt.declared, got, tt.want)
			}
		})
	}
}

func TestIsViewableAs(t *testing.T) {
	target := MustIntern(StringClass, ObjectClass)
	if !target.IsViewableAs(MustIntern(ObjectClass, StringClass)) {
		t.Error("(Object)String should be viewable as (String)Object")
	}
	if target.IsViewableAs(MustIntern(StringClass, IntClass)) {
		t.Error("a primitive parameter needs conversion")
	}
	if MustIntern(ObjectClass, ObjectClass).IsViewableAs(MustIntern(StringClass, ObjectClass)) {
		t.Error("a downcast return is not a view")
	}
}

func TestSpreadAndCollectTargets(t *testing.T) {
	s := MustIntern(VoidClass, StringClass, ObjectArrayClass)
	spread, err := s.SpreadTarget(1, 3, ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	if spread != MustIntern(VoidClass, StringClass, ObjectClass, ObjectClass, ObjectClass) {
		t.Errorf("SpreadTarget = %s", spread)
	}
	back, err := spread.CollectTarget(1, 3, ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Errorf("CollectTarget = %s, want %s", back, s)
	}
	if _, err := s.SpreadTarget(0, 1, ObjectClass); err == nil {
		t.Error("spreading a non-array parameter should fail")
	}
}

func TestAdaptabilityIsPreorder(t *testing.T) {
	primitives := []*Class{BooleanClass, ByteClass, ShortClass, CharClass, IntClass, LongClass, FloatClass, DoubleClass}
	references := []*Class{ObjectClass, NumberClass, IntegerBoxClass, LongBoxClass, StringClass, ComparableIface, ObjectArrayClass}

	// returning(a).IsAdaptableTo(returning(b)) holds when an a result can
	// be delivered as b; taking(b).IsAdaptableTo(taking(a)) when an a
	// argument can be passed as b.
	returning := func(c *Class) *Signature { return MustIntern(c) }
	taking := func(c *Class) *Signature { return MustIntern(VoidClass, c) }
	converts := func(a, b *Class) bool {
		r := returning(a).IsAdaptableTo(returning(b))
		if p := taking(b).IsAdaptableTo(taking(a)); p != r {
			t.Fatalf("%s -> %s: return rule %v, argument rule %v", a, b, r, p)
		}
		return r
	}

	all := append(append([]*Class(nil), primitives...), references...)
	for _, c := range all {
		for _, s := range []*Signature{returning(c), taking(c), MustIntern(c, c, ObjectClass), MustIntern(VoidClass, IntClass, c)} {
			if !s.IsAdaptableTo(s) {
				t.Errorf("%s is not adaptable to itself", s)
			}
		}
	}

	for name, family := range map[string][]*Class{"widening": primitives, "subtyping": references} {
		for _, a := range family {
			for _, b := range family {
				for _, c := range family {
					if converts(a, b) && converts(b, c) && !converts(a, c) {
						t.Errorf("%s: %s -> %s -> %s but not %s -> %s", name, a, b, c, a, c)
					}
				}
			}
		}
	}

	chains := [][]*Class{
		{ByteClass, ShortClass, IntClass, LongClass, FloatClass, DoubleClass},
		{CharClass, IntClass, LongClass, FloatClass, DoubleClass},
		{IntegerBoxClass, NumberClass, ObjectClass},
		{StringClass, ComparableIface, ObjectClass},
		{IntClass, IntegerBoxClass, NumberClass, ObjectClass},
	}
	for _, chain := range chains {
		for i := range chain {
			for j := i; j < len(chain); j++ {
				if !converts(chain[i], chain[j]) {
					t.Errorf("%s should convert to %s", chain[i], chain[j])
				}
			}
		}
	}
	if converts(LongClass, IntClass) || converts(ShortClass, CharClass) || converts(BooleanClass, IntClass) {
		t.Error("narrowing primitive conversions are not adaptations")
	}
}
