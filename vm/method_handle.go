package vm

import (
	"strconv"
	"sync/atomic"
)

// MethodHandle is a typed, directly invocable reference to behavior: a
// member, a bound combination of a target and captured values, or an
// adapter around another handle. Its behavior is its lambda form; the
// handle supplies the form's leading argument.
type MethodHandle struct {
	typ  *Signature
	form atomic.Pointer[LambdaForm]

	// Direct handles: the resolved member.
	member *MemberRef

	// Bound handles: the carrier species and the captured values in field
	// order.
	species *SpeciesData
	bound   []any
	bindPos int // reinvokers: where captured values enter the target's arguments

	varargs bool
	rt      *Runtime

	// Most recent AsType result.
	asTypeCache atomic.Pointer[MethodHandle]
}

func newHandle(rt *Runtime, typ *Signature, form *LambdaForm) *MethodHandle {
	mh := &MethodHandle{typ: typ, rt: rt}
	mh.form.Store(form)
	return mh
}

// Type returns the handle's signature.
func (mh *MethodHandle) Type() *Signature { return mh.typ }

// Form returns the handle's current lambda form.
func (mh *MethodHandle) Form() *LambdaForm { return mh.form.Load() }

// Member returns the resolved member of a direct handle, or nil.
func (mh *MethodHandle) Member() *MemberRef { return mh.member }

// Species returns the carrier species of a bound handle, or nil.
func (mh *MethodHandle) Species() *SpeciesData { return mh.species }

// BoundCount returns the number of captured values.
func (mh *MethodHandle) BoundCount() int { return len(mh.bound) }

// BoundValue returns captured value i.
func (mh *MethodHandle) BoundValue(i int) any { return mh.bound[i] }

// IsVarargsCollector reports whether the handle collects trailing arguments
// into its final array parameter when invoked generically.
func (mh *MethodHandle) IsVarargsCollector() bool { return mh.varargs }

func (mh *MethodHandle) String() string {
	return "MethodHandle" + mh.typ.Descriptor()
}

func (mh *MethodHandle) runtime() *Runtime {
	if mh.rt != nil {
		return mh.rt
	}
	return Default()
}

// withType returns a handle with the same behavior viewed at a different
// signature of the same basic shape.
func (mh *MethodHandle) withType(t *Signature) *MethodHandle {
	if t == mh.typ {
		return mh
	}
	c := newHandle(mh.rt, t, mh.form.Load())
	c.member = mh.member
	c.species = mh.species
	c.bound = mh.bound
	c.bindPos = mh.bindPos
	return c
}

// checkHandleArity rejects handle signatures that leave no slot for the
// handle itself.
func checkHandleArity(sig *Signature) error {
	if sig.slots > MaxHandleArity {
		return &IllegalArgumentError{Msg: "signature " + sig.Descriptor() + " needs " +
			strconv.Itoa(sig.slots) + " slots, handles allow " + strconv.Itoa(MaxHandleArity)}
	}
	return nil
}

// invokeBasic calls the handle's form with basic-representation arguments.
func (mh *MethodHandle) invokeBasic(argv []any) (any, error) {
	frame := make([]any, len(argv)+1)
	frame[0] = mh
	copy(frame[1:], argv)
	return mh.form.Load().invoke(frame)
}

// ---------------------------------------------------------------------------
// Invocation entry points
// ---------------------------------------------------------------------------

// InvokeExact calls the handle with arguments whose runtime types match its
// signature exactly: primitives must be of the declared primitive kind and
// references instances of the declared class (or null).
func (mh *MethodHandle) InvokeExact(args ...any) (any, error) {
	if len(args) != len(mh.typ.ptypes) {
		return nil, &WrongMethodTypeError{Have: strconv.Itoa(len(args)) + " arguments", Want: mh.typ.Descriptor()}
	}
	argv := make([]any, len(args))
	for i, a := range args {
		p := mh.typ.ptypes[i]
		if p.IsPrimitive() {
			if primitiveKindOf(a) != p.kind {
				return nil, &WrongMethodTypeError{Have: describeValue(a) + " at " + strconv.Itoa(i), Want: mh.typ.Descriptor()}
			}
		} else {
			a = Box(a)
			if a != nil && !p.IsInstance(a) {
				return nil, &WrongMethodTypeError{Have: describeValue(a) + " at " + strconv.Itoa(i), Want: mh.typ.Descriptor()}
			}
		}
		v, err := toBasicValue(a, BasicTypeOf(p))
		if err != nil {
			return nil, err
		}
		argv[i] = v
	}
	return mh.invokeConverted(argv)
}

// Invoke calls the handle, converting each argument to the declared
// parameter type as an asType adaptation would: widening, boxing, unboxing
// and reference casts. A varargs collector gathers trailing arguments.
func (mh *MethodHandle) Invoke(args ...any) (any, error) {
	if mh.varargs {
		var err error
		if args, err = mh.collectVarargs(args); err != nil {
			return nil, err
		}
	}
	if len(args) != len(mh.typ.ptypes) {
		return nil, &WrongMethodTypeError{Have: strconv.Itoa(len(args)) + " arguments", Want: mh.typ.Descriptor()}
	}
	argv := make([]any, len(args))
	for i, a := range args {
		v, err := convertArgument(a, mh.typ.ptypes[i])
		if err != nil {
			return nil, err
		}
		argv[i] = v
	}
	return mh.invokeConverted(argv)
}

// InvokeWithArguments is Invoke with the arguments in a slice. It accepts
// argument lists longer than the native slot limit when the handle is a
// varargs collector, since the excess is gathered into an array before
// any positional call is made.
func (mh *MethodHandle) InvokeWithArguments(args []any) (any, error) {
	return mh.Invoke(args...)
}

func (mh *MethodHandle) invokeConverted(argv []any) (any, error) {
	res, err := mh.invokeBasic(argv)
	if err != nil {
		return nil, err
	}
	return fromBasicValue(res, mh.typ.rtype)
}

// collectVarargs packs trailing arguments into the final array parameter
// unless the caller already supplied a matching array.
func (mh *MethodHandle) collectVarargs(args []any) ([]any, error) {
	n := len(mh.typ.ptypes)
	last := mh.typ.ptypes[n-1]
	if len(args) == n && (args[n-1] == nil || last.IsInstance(args[n-1])) {
		return args, nil
	}
	if len(args) < n-1 {
		return nil, &WrongMethodTypeError{Have: strconv.Itoa(len(args)) + " arguments", Want: mh.typ.Descriptor()}
	}
	arr := NewArray(last.Component, len(args)-(n-1))
	for i, a := range args[n-1:] {
		v, err := convertElement(a, last.Component)
		if err != nil {
			return nil, err
		}
		arr.Elems[i] = v
	}
	out := make([]any, n)
	copy(out, args[:n-1])
	out[n-1] = arr
	return out, nil
}

// convertArgument converts a value to the declared class and then to its
// basic representation.
func convertArgument(v any, to *Class) (any, error) {
	d, err := convertElement(v, to)
	if err != nil {
		return nil, err
	}
	return toBasicValue(d, BasicTypeOf(to))
}

// convertElement converts a value to the declared class using the
// adaptation rules: widening, unboxing, boxing and checked casts.
func convertElement(v any, to *Class) (any, error) {
	if to.IsPrimitive() {
		if k := primitiveKindOf(v); k != KindReference {
			if !canWidenKind(k, to.kind) {
				return nil, &ClassCastError{From: describeValue(v), To: to.Name}
			}
			return widenPrimitive(v, to)
		}
		return unboxTo(v, to)
	}
	return checkCast(Box(v), to)
}
