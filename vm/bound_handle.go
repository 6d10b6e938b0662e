package vm

import "strconv"

// ---------------------------------------------------------------------------
// Bound handle forms
// ---------------------------------------------------------------------------
//
// Every bound handle keeps its target in field 0 (L0). The remaining fields
// are captured arguments. Forms are cached on the species, keyed by the
// shape they implement.

// reinvokerForm inserts fields 1.. of the species at position pos of the
// target's arguments:
//
//	(mh, a...) => invokeBasic(argL0(mh), a[:pos]..., fields..., a[pos:]...)
//
// sig is the bound handle's signature.
func (sd *SpeciesData) reinvokerForm(sig *Signature, pos int) *LambdaForm {
	basic := sig.BasicForm()
	key := "bind:" + strconv.Itoa(pos) + ":" + basic.BasicString()
	return sd.form(key, func() *LambdaForm {
		b := newFormBuilder(append([]BasicType{LType}, basic.ParameterBasicTypes()...)...)
		mh := b.param(0)
		target := b.call(sd.getters[0], mh)
		captured := make([]any, 0, len(sd.getters)-1)
		for _, g := range sd.getters[1:] {
			captured = append(captured, b.call(g, mh))
		}
		n := b.arity
		res := b.call(nfInvokeBasic.of(basic.ReturnBasicType()),
			joinArgs(target, b.params(1, 1+pos), captured, b.params(1+pos, n))...)
		return b.build(FormBoundReinvoker, res, basic.ReturnBasicType())
	})
}

// convertForm adapts a call at declared to the target signature, applying
// the per-argument conversion code and the return conversion.
func (sd *SpeciesData) convertForm(target, declared *Signature) *LambdaForm {
	key := "convert:" + target.key + "->" + declared.key
	return sd.form(key, func() *LambdaForm {
		b := newFormBuilder(append([]BasicType{LType}, declared.ParameterBasicTypes()...)...)
		mh := b.param(0)
		t := b.call(sd.getters[0], mh)
		args := []any{t}
		for i, dst := range target.ptypes {
			args = append(args, convertValue(b, b.param(i+1), declared.ptypes[i], dst))
		}
		res := b.call(nfInvokeBasic.of(target.ReturnBasicType()), args...)
		out := convertValue(b, res, target.rtype, declared.rtype)
		return b.build(FormConvert, out, declared.ReturnBasicType())
	})
}

// convertValue appends the temporaries moving v from src to dst and
// returns the converted value.
func convertValue(b *formBuilder, v *Name, src, dst *Class) *Name {
	switch conversionFor(src, dst) {
	case convCast:
		return b.call(nfCheckCast, v, dst)
	case convWiden:
		return b.call(nfWiden.of(BasicTypeOf(dst)), v, dst)
	case convBox:
		return b.call(nfBox, v, src)
	case convUnbox:
		return b.call(nfUnbox.of(BasicTypeOf(dst)), v, dst)
	case convZero:
		return b.call(nfZero.of(BasicTypeOf(dst)), dst)
	case convDrop:
		return nil
	}
	return v
}

// spreaderForm replaces the array argument at pos with its count elements:
//
//	(mh, a...) => invokeBasic(argL0(mh), a[:pos]..., arr[0]..arr[count-1], a[pos+1:]...)
//
// outer is the spreader's signature and target the wrapped handle's.
func (sd *SpeciesData) spreaderForm(target, outer *Signature, pos, count int) *LambdaForm {
	key := "spread:" + strconv.Itoa(pos) + ":" + strconv.Itoa(count) + ":" + target.key + "<-" + outer.key
	return sd.form(key, func() *LambdaForm {
		b := newFormBuilder(append([]BasicType{LType}, outer.ParameterBasicTypes()...)...)
		mh := b.param(0)
		t := b.call(sd.getters[0], mh)
		arr := b.call(nfCheckSpreadArgument, b.param(1+pos), count)
		elems := make([]any, count)
		for i := range elems {
			elem := target.ptypes[pos+i]
			elems[i] = b.call(nfArrayElement.of(BasicTypeOf(elem)), arr, i, elem)
		}
		res := b.call(nfInvokeBasic.of(target.ReturnBasicType()),
			joinArgs(t, b.params(1, 1+pos), elems, b.params(2+pos, b.arity))...)
		out := convertValue(b, res, target.rtype, outer.rtype)
		return b.build(FormSpreader, out, outer.ReturnBasicType())
	})
}

// collectorForm gathers count arguments starting at pos into an array of
// elem and passes it in their place.
func (sd *SpeciesData) collectorForm(target, outer *Signature, pos, count int, elem *Class) *LambdaForm {
	key := "collect:" + strconv.Itoa(pos) + ":" + strconv.Itoa(count) + ":" + target.key + "<-" + outer.key
	return sd.form(key, func() *LambdaForm {
		b := newFormBuilder(append([]BasicType{LType}, outer.ParameterBasicTypes()...)...)
		mh := b.param(0)
		t := b.call(sd.getters[0], mh)
		arr := b.call(nfCollectArray, joinArgs(elem, b.params(1+pos, 1+pos+count))...)
		res := b.call(nfInvokeBasic.of(target.ReturnBasicType()),
			joinArgs(t, b.params(1, 1+pos), arr, b.params(1+pos+count, b.arity))...)
		out := convertValue(b, res, target.rtype, outer.rtype)
		return b.build(FormCollector, out, outer.ReturnBasicType())
	})
}

// bindValues creates a handle of species key holding first in L0 and vals
// (already in basic representation) after it.
func (rt *Runtime) bindValues(key string, typ *Signature, first any, vals []any,
	form func(sd *SpeciesData) *LambdaForm) (*MethodHandle, error) {
	sd, err := rt.FindSpecies(key)
	if err != nil {
		return nil, err
	}
	all := make([]any, 0, len(vals)+1)
	all = append(all, first)
	all = append(all, vals...)
	return sd.make(typ, form(sd), all)
}
