package vm

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Lambda forms
// ---------------------------------------------------------------------------
//
// A LambdaForm is a straight-line program over named temporaries. The first
// arity names are the incoming arguments; each later name applies a
// NamedFunction to earlier names and constants. Forms are built once and
// never mutated afterwards, except for the one-way promotion from the
// interpreted state to the compiled state.
//
// Values flowing through a form use the basic representation: references
// as-is, every int-like value as int32, long as int64, float as float32 and
// double as float64.

// FormKind tags a form for debugging and selects its slot in the dense
// per-signature cache.
type FormKind uint8

const (
	FormGeneric FormKind = iota
	FormIdentity
	FormZero
	FormConstant
	FormBoundReinvoker
	FormDirectInvokeVirtual
	FormDirectInvokeInterface
	FormDirectInvokeStatic
	FormDirectInvokeStaticInit
	FormDirectInvokeSpecial
	FormDirectInvokeSpecialChecked
	FormDirectNewInvokeSpecial
	FormDirectNewInvokeSpecialInit
	FormDirectArrayCall
	FormFieldAccess
	FormExactInvoker
	FormGenericInvoker
	FormLinkToCallSite
	FormLinkToTargetMethod
	FormDynamicInvoker
	FormConvert
	FormSpreader
	FormCollector

	formLimit
)

var formKindNames = [formLimit]string{
	FormGeneric:                    "generic",
	FormIdentity:                   "identity",
	FormZero:                       "zero",
	FormConstant:                   "constant",
	FormBoundReinvoker:             "boundReinvoker",
	FormDirectInvokeVirtual:        "invokeVirtual",
	FormDirectInvokeInterface:      "invokeInterface",
	FormDirectInvokeStatic:         "invokeStatic",
	FormDirectInvokeStaticInit:     "invokeStaticInit",
	FormDirectInvokeSpecial:        "invokeSpecial",
	FormDirectInvokeSpecialChecked: "invokeSpecialChecked",
	FormDirectNewInvokeSpecial:     "newInvokeSpecial",
	FormDirectNewInvokeSpecialInit: "newInvokeSpecialInit",
	FormDirectArrayCall:            "invokeWithArray",
	FormFieldAccess:                "fieldAccess",
	FormExactInvoker:               "invokeExact_MT",
	FormGenericInvoker:             "invoke_MT",
	FormLinkToCallSite:             "linkToCallSite",
	FormLinkToTargetMethod:         "linkToTargetMethod",
	FormDynamicInvoker:             "dynamicInvoker",
	FormConvert:                    "convert",
	FormSpreader:                   "spreader",
	FormCollector:                  "collector",
}

func (k FormKind) String() string {
	if k < formLimit {
		return formKindNames[k]
	}
	return "form(" + strconv.Itoa(int(k)) + ")"
}

// FormKindByName maps a kind name back to its kind.
func FormKindByName(name string) (FormKind, bool) {
	for k, n := range formKindNames {
		if n == name {
			return FormKind(k), true
		}
	}
	return 0, false
}

// Name is one temporary of a lambda form. Parameters have no function.
// Each argument is either a *Name defined earlier or a constant.
type Name struct {
	index int
	typ   BasicType
	fn    *NamedFunction
	args  []any
}

// Index returns the position of the name in its form.
func (n *Name) Index() int { return n.index }

// Type returns the basic type of the value the name holds.
func (n *Name) Type() BasicType { return n.typ }

// Function returns the applied function, or nil for a parameter.
func (n *Name) Function() *NamedFunction { return n.fn }

// IsParam reports whether the name is an incoming argument.
func (n *Name) IsParam() bool { return n.fn == nil }

func (n *Name) label() string {
	return "t" + strconv.Itoa(n.index) + ":" + n.typ.String()
}

// LambdaForm is an intermediate program describing how to turn incoming
// arguments into an outgoing call.
type LambdaForm struct {
	kind   FormKind
	arity  int
	names  []*Name
	result int // index of the result name, or -1 for void
	rtype  BasicType

	compiled    atomic.Pointer[compiledForm]
	invocations atomic.Int32
	queued      atomic.Bool
}

// Kind returns the form's kind tag.
func (f *LambdaForm) Kind() FormKind { return f.kind }

// Arity returns the number of incoming arguments.
func (f *LambdaForm) Arity() int { return f.arity }

// Names returns the form's temporaries, parameters first.
func (f *LambdaForm) Names() []*Name { return append([]*Name(nil), f.names...) }

// ReturnType returns the basic type of the form's result.
func (f *LambdaForm) ReturnType() BasicType { return f.rtype }

// ParameterTypes returns the basic types of the incoming arguments.
func (f *LambdaForm) ParameterTypes() []BasicType {
	out := make([]BasicType, f.arity)
	for i := range out {
		out[i] = f.names[i].typ
	}
	return out
}

// BasicSignature returns the basic signature of the form's entry point.
func (f *LambdaForm) BasicSignature() *Signature {
	ps := make([]*Class, f.arity)
	for i := range ps {
		ps[i] = f.names[i].typ.Class()
	}
	return MustIntern(f.rtype.Class(), ps...)
}

// basicString renders the form's basic signature without interning it.
// Array-call forms may carry one more slot than a signature allows.
func (f *LambdaForm) basicString() string {
	ts := make([]BasicType, f.arity)
	for i := range ts {
		ts[i] = f.names[i].typ
	}
	return BasicTypesString(ts) + "_" + string(f.rtype.Char())
}

// IsCompiled reports whether the form has been promoted to compiled code.
func (f *LambdaForm) IsCompiled() bool { return f.compiled.Load() != nil }

// InvocationCount returns how many interpreted invocations the form has seen.
func (f *LambdaForm) InvocationCount() int { return int(f.invocations.Load()) }

// Uses reports whether any temporary applies the named primitive.
func (f *LambdaForm) Uses(fn string) bool {
	for _, n := range f.names[f.arity:] {
		if n.fn.name == fn {
			return true
		}
	}
	return false
}

// IndexOf returns the index of the first temporary applying the named
// primitive, or -1.
func (f *LambdaForm) IndexOf(fn string) int {
	for _, n := range f.names[f.arity:] {
		if n.fn.name == fn {
			return n.index
		}
	}
	return -1
}

// Functions lists the primitives applied by the form, in order.
func (f *LambdaForm) Functions() []string {
	out := make([]string, 0, len(f.names)-f.arity)
	for _, n := range f.names[f.arity:] {
		out = append(out, n.fn.name)
	}
	return out
}

// String renders the form deterministically, for example
//
//	invokeStatic=Lambda(a0:L,a1:I)=>{t2:L=internalMemberName(a0);t3:L=linkToStatic(a1,t2);t3}
//
// The rendering depends only on the form's structure, so equal renderings
// mean behaviorally identical forms.
func (f *LambdaForm) String() string {
	var sb strings.Builder
	sb.WriteString(f.kind.String())
	sb.WriteString("=Lambda(")
	for i := 0; i < f.arity; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "a%d:%s", i, f.names[i].typ)
	}
	sb.WriteString(")=>{")
	for _, n := range f.names[f.arity:] {
		sb.WriteString(n.label())
		sb.WriteByte('=')
		sb.WriteString(n.fn.name)
		sb.WriteByte('(')
		for j, a := range n.args {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.renderArg(a))
		}
		sb.WriteString(");")
	}
	if f.result < 0 {
		sb.WriteString("void")
	} else {
		sb.WriteString(f.renderArg(f.names[f.result]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (f *LambdaForm) renderArg(a any) string {
	if n, ok := a.(*Name); ok {
		if n.index < f.arity {
			return "a" + strconv.Itoa(n.index)
		}
		return "t" + strconv.Itoa(n.index)
	}
	return renderConstant(a)
}

func renderConstant(a any) string {
	switch x := a.(type) {
	case nil:
		return "null"
	case *Class:
		return x.Name + ".class"
	case *Signature:
		return x.Descriptor()
	case *MemberRef:
		return x.Key()
	case string:
		return strconv.Quote(x)
	case int:
		return strconv.Itoa(x)
	case BasicType:
		return x.String()
	case fieldAccessor:
		return x.name()
	case conversion:
		return x.String()
	}
	return fmt.Sprintf("%v", a)
}

// ---------------------------------------------------------------------------
// Building forms
// ---------------------------------------------------------------------------

// formBuilder assembles the temporaries of a form in order.
type formBuilder struct {
	names []*Name
	arity int
}

func newFormBuilder(params ...BasicType) *formBuilder {
	b := &formBuilder{arity: len(params)}
	for i, t := range params {
		b.names = append(b.names, &Name{index: i, typ: t})
	}
	return b
}

// param returns incoming argument i.
func (b *formBuilder) param(i int) *Name { return b.names[i] }

// params returns incoming arguments [from, to).
func (b *formBuilder) params(from, to int) []any {
	out := make([]any, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, b.names[i])
	}
	return out
}

// call appends a temporary applying fn to args.
func (b *formBuilder) call(fn *NamedFunction, args ...any) *Name {
	n := &Name{index: len(b.names), typ: fn.rtype, fn: fn, args: args}
	b.names = append(b.names, n)
	return n
}

// build finishes the form. A nil result makes the form return nothing;
// rtype must then be VType.
func (b *formBuilder) build(kind FormKind, result *Name, rtype BasicType) *LambdaForm {
	f := &LambdaForm{
		kind:   kind,
		arity:  b.arity,
		names:  b.names,
		result: -1,
		rtype:  rtype,
	}
	if result != nil && rtype != VType {
		f.result = result.index
	}
	return f
}

// joinArgs concatenates names, name lists and constants into one argument
// list.
func joinArgs(parts ...any) []any {
	var out []any
	for _, p := range parts {
		if list, ok := p.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// invoke runs the form on basic-representation arguments, using compiled
// code when available. Interpreted invocations are counted toward the
// compile threshold.
func (f *LambdaForm) invoke(argv []any) (any, error) {
	if c := f.compiled.Load(); c != nil {
		return c.code(argv)
	}
	n := f.invocations.Add(1)
	if threshold := compileThreshold.Load(); threshold >= 0 && n >= threshold {
		formCompiler.request(f)
		if c := f.compiled.Load(); c != nil {
			return c.code(argv)
		}
	}
	return f.interpret(argv)
}
