package vm

// Identity returns a handle of type (c)c that returns its argument.
func (rt *Runtime) Identity(c *Class) (*MethodHandle, error) {
	if c == VoidClass {
		return nil, &IllegalArgumentError{Msg: "no identity for void"}
	}
	typ, err := Intern(c, c)
	if err != nil {
		return nil, err
	}
	f := cachedForm(typ, FormIdentity, func(basic *Signature) *LambdaForm {
		bt := basic.ReturnBasicType()
		b := newFormBuilder(LType, bt)
		return b.build(FormIdentity, b.param(1), bt)
	})
	return newHandle(rt, typ, f), nil
}

// Zero returns a handle of type ()c that returns the zero value of c.
func (rt *Runtime) Zero(c *Class) (*MethodHandle, error) {
	typ, err := Intern(c)
	if err != nil {
		return nil, err
	}
	f := cachedForm(typ, FormZero, func(basic *Signature) *LambdaForm {
		bt := basic.ReturnBasicType()
		b := newFormBuilder(LType)
		if bt == VType {
			return b.build(FormZero, nil, VType)
		}
		z := b.call(nfZero.of(bt), bt.Class())
		return b.build(FormZero, z, bt)
	})
	return newHandle(rt, typ, f), nil
}

// Constant returns a handle of type ()c that always returns v, converted
// to c.
func (rt *Runtime) Constant(c *Class, v any) (*MethodHandle, error) {
	if c == VoidClass {
		return nil, &IllegalArgumentError{Msg: "no constant of type void"}
	}
	bv, err := convertArgument(v, c)
	if err != nil {
		return nil, err
	}
	typ, err := Intern(c)
	if err != nil {
		return nil, err
	}
	bt := BasicTypeOf(c)
	return rt.bindValues(string(bt.Char()), typ, bv, nil, func(sd *SpeciesData) *LambdaForm {
		return sd.form("constant", func() *LambdaForm {
			b := newFormBuilder(LType)
			x := b.call(sd.getters[0], b.param(0))
			return b.build(FormConstant, x, bt)
		})
	})
}
