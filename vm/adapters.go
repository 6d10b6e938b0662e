package vm

import "strconv"

// ---------------------------------------------------------------------------
// Handle adaptation
// ---------------------------------------------------------------------------

// AsType returns a handle that accepts calls at declared and adapts them to
// this handle's signature. A signature reachable without conversion code is
// a plain view; anything else wraps the handle in a conversion adapter
// whose form performs the casts, boxing, unboxing and widening.
func (mh *MethodHandle) AsType(declared *Signature) (*MethodHandle, error) {
	if declared == mh.typ {
		return mh, nil
	}
	if c := mh.asTypeCache.Load(); c != nil && c.typ == declared {
		return c, nil
	}
	if mh.varargs && !mh.typ.IsAdaptableTo(declared) {
		return mh.asVarargsType(declared)
	}
	if !mh.typ.IsAdaptableTo(declared) {
		return nil, &WrongMethodTypeError{Have: mh.typ.Descriptor(), Want: declared.Descriptor()}
	}
	if err := checkHandleArity(declared); err != nil {
		return nil, err
	}
	var out *MethodHandle
	if mh.typ.IsViewableAs(declared) {
		out = mh.withType(declared)
	} else {
		var err error
		out, err = mh.runtime().bindValues("L", declared, mh, nil, func(sd *SpeciesData) *LambdaForm {
			return sd.convertForm(mh.typ, declared)
		})
		if err != nil {
			return nil, err
		}
	}
	mh.asTypeCache.Store(out)
	return out, nil
}

// asVarargsType collects the trailing arguments of declared into the
// final array parameter, then adapts the rest.
func (mh *MethodHandle) asVarargsType(declared *Signature) (*MethodHandle, error) {
	n := len(mh.typ.ptypes)
	count := len(declared.ptypes) - (n - 1)
	if count < 0 {
		return nil, &WrongMethodTypeError{Have: mh.typ.Descriptor(), Want: declared.Descriptor()}
	}
	coll, err := mh.AsFixedArity().AsCollector(n-1, mh.typ.ptypes[n-1], count)
	if err != nil {
		return nil, err
	}
	out, err := coll.AsType(declared)
	if err != nil {
		return nil, err
	}
	mh.asTypeCache.Store(out)
	return out, nil
}

// AsSpreader returns a handle taking an array of arrayType in place of the
// count parameters starting at pos. The array must have exactly count
// elements when called.
func (mh *MethodHandle) AsSpreader(pos int, arrayType *Class, count int) (*MethodHandle, error) {
	if arrayType == nil || !arrayType.IsArray() {
		return nil, &IllegalArgumentError{Msg: "spreader needs an array type, got " + describeClass(arrayType)}
	}
	if pos < 0 || count < 0 || pos+count > len(mh.typ.ptypes) {
		return nil, &IllegalArgumentError{Msg: "bad spread range at " + strconv.Itoa(pos) +
			" of " + strconv.Itoa(count) + " for " + mh.typ.Descriptor()}
	}
	for _, p := range mh.typ.ptypes[pos : pos+count] {
		if !canConvert(arrayType.Component, p) {
			return nil, &WrongMethodTypeError{Have: arrayType.Name, Want: mh.typ.Descriptor()}
		}
	}
	outer, err := mh.typ.CollectTarget(pos, count, arrayType.Component)
	if err != nil {
		return nil, err
	}
	if err := checkHandleArity(outer); err != nil {
		return nil, err
	}
	return mh.runtime().bindValues("L", outer, mh, nil, func(sd *SpeciesData) *LambdaForm {
		return sd.spreaderForm(mh.typ, outer, pos, count)
	})
}

// AsCollector returns a handle taking count arguments at pos, which it
// gathers into an array of arrayType for the array parameter at pos.
func (mh *MethodHandle) AsCollector(pos int, arrayType *Class, count int) (*MethodHandle, error) {
	if arrayType == nil || !arrayType.IsArray() {
		return nil, &IllegalArgumentError{Msg: "collector needs an array type, got " + describeClass(arrayType)}
	}
	if pos < 0 || pos >= len(mh.typ.ptypes) {
		return nil, &IllegalArgumentError{Msg: "collect position " + strconv.Itoa(pos) + " out of range for " + mh.typ.Descriptor()}
	}
	if p := mh.typ.ptypes[pos]; !p.IsAssignableFrom(arrayType) {
		return nil, &WrongMethodTypeError{Have: arrayType.Name, Want: p.Name + " at " + strconv.Itoa(pos)}
	}
	outer, err := mh.typ.ChangeParameterType(pos, arrayType)
	if err != nil {
		return nil, err
	}
	if outer, err = outer.SpreadTarget(pos, count, arrayType.Component); err != nil {
		return nil, err
	}
	if err := checkHandleArity(outer); err != nil {
		return nil, err
	}
	target := mh
	if target.typ.ptypes[pos] != arrayType {
		view, err := mh.typ.ChangeParameterType(pos, arrayType)
		if err != nil {
			return nil, err
		}
		if target, err = mh.AsType(view); err != nil {
			return nil, err
		}
	}
	return mh.runtime().bindValues("L", outer, target, nil, func(sd *SpeciesData) *LambdaForm {
		return sd.collectorForm(target.typ, outer, pos, count, arrayType.Component)
	})
}

// AsVarargsCollector returns a handle that, when invoked generically,
// collects trailing arguments into its final array parameter.
func (mh *MethodHandle) AsVarargsCollector() (*MethodHandle, error) {
	last := mh.typ.LastParameterType()
	if last == nil || !last.IsArray() {
		return nil, &IllegalArgumentError{Msg: "not an array-taking signature " + mh.typ.Descriptor()}
	}
	if mh.varargs {
		return mh, nil
	}
	c := newHandle(mh.rt, mh.typ, mh.form.Load())
	c.member = mh.member
	c.species = mh.species
	c.bound = mh.bound
	c.bindPos = mh.bindPos
	c.varargs = true
	return c, nil
}

// AsFixedArity returns a handle that does not collect varargs.
func (mh *MethodHandle) AsFixedArity() *MethodHandle {
	if !mh.varargs {
		return mh
	}
	c := newHandle(mh.rt, mh.typ, mh.form.Load())
	c.member = mh.member
	c.species = mh.species
	c.bound = mh.bound
	c.bindPos = mh.bindPos
	return c
}

// BindTo binds x to the leading reference parameter.
func (mh *MethodHandle) BindTo(x any) (*MethodHandle, error) {
	if len(mh.typ.ptypes) == 0 || mh.typ.ptypes[0].IsPrimitive() {
		return nil, &IllegalArgumentError{Msg: "no leading reference parameter in " + mh.typ.Descriptor()}
	}
	return mh.InsertArguments(0, x)
}

// InsertArguments binds vals to the parameters starting at pos. Each value
// is converted to its parameter type first.
func (mh *MethodHandle) InsertArguments(pos int, vals ...any) (*MethodHandle, error) {
	if pos < 0 || pos+len(vals) > len(mh.typ.ptypes) {
		return nil, &IllegalArgumentError{Msg: "cannot insert " + strconv.Itoa(len(vals)) +
			" arguments at " + strconv.Itoa(pos) + " into " + mh.typ.Descriptor()}
	}
	if len(vals) == 0 {
		return mh, nil
	}
	basic := make([]any, len(vals))
	keyTypes := make([]byte, 0, len(vals)+1)
	keyTypes = append(keyTypes, 'L')
	for i, v := range vals {
		p := mh.typ.ptypes[pos+i]
		bv, err := convertArgument(v, p)
		if err != nil {
			return nil, err
		}
		basic[i] = bv
		keyTypes = append(keyTypes, BasicTypeOf(p).Char())
	}
	typ, err := mh.typ.DropParameterTypes(pos, pos+len(vals))
	if err != nil {
		return nil, err
	}

	if pos == 0 && mh.isReinvokerAtZero() {
		return mh.extendBound(typ, basic)
	}
	out, err := mh.runtime().bindValues(string(keyTypes), typ, mh, basic, func(sd *SpeciesData) *LambdaForm {
		return sd.reinvokerForm(typ, pos)
	})
	if err != nil {
		return nil, err
	}
	out.bindPos = pos
	return out, nil
}

func (mh *MethodHandle) isReinvokerAtZero() bool {
	return mh.species != nil && mh.bindPos == 0 && mh.form.Load().kind == FormBoundReinvoker
}

// extendBound appends values to a reinvoker that inserts at position zero.
// The target stays the same; the captured prefix grows, so each step goes
// through the carrier's extender for the next species.
func (mh *MethodHandle) extendBound(typ *Signature, vals []any) (*MethodHandle, error) {
	cur := mh
	for i, v := range vals {
		step := typ
		if i < len(vals)-1 {
			var err error
			if step, err = mh.typ.DropParameterTypes(0, i+1); err != nil {
				return nil, err
			}
		}
		t := basicTypeOfValue(v)
		ext := carrierMethod(cur.species.carrier, "extend"+t.String())
		if ext == nil {
			return nil, &LinkageError{Msg: "carrier " + cur.species.carrier.Name + " cannot extend by " + t.String()}
		}
		next, err := cur.species.Extend(t)
		if err != nil {
			return nil, err
		}
		form := next.reinvokerForm(step, 0)
		res, err := ext.Code([]any{cur, step, form, v})
		if err != nil {
			return nil, err
		}
		cur = res.(*MethodHandle)
	}
	return cur, nil
}

// basicTypeOfValue returns the basic type of a basic-representation value.
func basicTypeOfValue(v any) BasicType {
	switch v.(type) {
	case int32:
		return IType
	case int64:
		return JType
	case float32:
		return FType
	case float64:
		return DType
	}
	return LType
}
