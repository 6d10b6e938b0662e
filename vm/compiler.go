package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// Form compilation
// ---------------------------------------------------------------------------
//
// There is no machine code. Compiling a form either selects a hand-written
// fast path for its shape or turns the temporary list into a chain of
// closures with argument plans resolved up front. Both are pure functions of
// the form's structure, so redundant concurrent compilations are harmless:
// the first published result wins.

// compiledForm is the code installed on a promoted form.
type compiledForm struct {
	code     func(argv []any) (any, error)
	fastPath bool
}

// DefaultCompileThreshold is the number of interpreted invocations after
// which a form is compiled.
const DefaultCompileThreshold = 30

var compileThreshold atomic.Int32

func init() {
	compileThreshold.Store(DefaultCompileThreshold)
}

// SetCompileThreshold sets the process-wide invocation count that triggers
// compilation. Zero compiles on first use; a negative value disables
// automatic compilation.
func SetCompileThreshold(n int) {
	compileThreshold.Store(int32(n))
}

// CompileThreshold returns the current compile threshold.
func CompileThreshold() int { return int(compileThreshold.Load()) }

// Compile promotes the form to compiled code. Compiling an already compiled
// form is a no-op.
func (f *LambdaForm) Compile() {
	f.compileOnce()
}

// compileOnce compiles and publishes the form, reporting whether this call
// installed the code.
func (f *LambdaForm) compileOnce() (installed, fastPath bool) {
	if f.compiled.Load() != nil {
		return false, false
	}
	c := compileForm(f)
	if !f.compiled.CompareAndSwap(nil, c) {
		return false, false
	}
	compilerLog.Debugf("compiled %s %s (fast path %t)", f.kind, f.basicString(), c.fastPath)
	return true, c.fastPath
}

func compileForm(f *LambdaForm) *compiledForm {
	if gen := fastPaths[f.kind]; gen != nil {
		if code := gen(f); code != nil {
			return &compiledForm{code: code, fastPath: true}
		}
	}
	return &compiledForm{code: closureCompile(f)}
}

// step is one compiled temporary: the function and where each argument
// comes from. A negative slot means the constant in the same position.
type step struct {
	fn     func(args []any) (any, error)
	slots  []int
	consts []any
	out    int
}

func closureCompile(f *LambdaForm) func(argv []any) (any, error) {
	steps := make([]step, 0, len(f.names)-f.arity)
	for _, n := range f.names[f.arity:] {
		st := step{
			fn:     n.fn.fn,
			slots:  make([]int, len(n.args)),
			consts: make([]any, len(n.args)),
			out:    n.index,
		}
		for j, a := range n.args {
			if ref, ok := a.(*Name); ok {
				st.slots[j] = ref.index
			} else {
				st.slots[j] = -1
				st.consts[j] = a
			}
		}
		steps = append(steps, st)
	}
	arity, width, result := f.arity, len(f.names), f.result
	kind := f.kind

	return func(argv []any) (any, error) {
		if len(argv) != arity {
			return nil, arityMismatch(kind, len(argv), arity)
		}
		frame := make([]any, width)
		copy(frame, argv)
		for i := range steps {
			st := &steps[i]
			in := make([]any, len(st.slots))
			for j, s := range st.slots {
				if s >= 0 {
					in[j] = frame[s]
				} else {
					in[j] = st.consts[j]
				}
			}
			v, err := st.fn(in)
			if err != nil {
				return nil, err
			}
			frame[st.out] = v
		}
		if result < 0 {
			return nil, nil
		}
		return frame[result], nil
	}
}

// ---------------------------------------------------------------------------
// Fast paths
// ---------------------------------------------------------------------------

// fastPaths maps a form kind to a generator of hand-written code for it.
// A generator returns nil when the particular form does not have the
// expected structure, in which case closure compilation is used.
var fastPaths [formLimit]func(f *LambdaForm) func(argv []any) (any, error)

func init() {
	fastPaths[FormIdentity] = fastIdentity
	fastPaths[FormLinkToTargetMethod] = fastLinkToTargetMethod
	fastPaths[FormLinkToCallSite] = fastLinkToCallSite
	fastPaths[FormDirectInvokeStatic] = fastDirectInvoke(RefInvokeStatic, "linkToStatic")
	fastPaths[FormDirectInvokeVirtual] = fastDirectInvoke(RefInvokeVirtual, "linkToVirtual")
	fastPaths[FormDirectInvokeSpecial] = fastDirectInvoke(RefInvokeSpecial, "linkToSpecial")
}

// fastIdentity handles (handle, x) => x.
func fastIdentity(f *LambdaForm) func(argv []any) (any, error) {
	if f.arity != 2 || len(f.names) != 2 || f.result != 1 {
		return nil
	}
	return func(argv []any) (any, error) {
		if len(argv) != 2 {
			return nil, arityMismatch(FormIdentity, len(argv), 2)
		}
		return argv[1], nil
	}
}

// fastLinkToTargetMethod handles (args..., target) => target.invokeBasic(args...).
func fastLinkToTargetMethod(f *LambdaForm) func(argv []any) (any, error) {
	if f.arity < 1 || len(f.names) != f.arity+1 {
		return nil
	}
	void, arity := f.result < 0, f.arity
	return func(argv []any) (any, error) {
		if len(argv) != arity {
			return nil, arityMismatch(FormLinkToTargetMethod, len(argv), arity)
		}
		target, err := asHandle(argv[len(argv)-1])
		if err != nil {
			return nil, err
		}
		res, err := target.invokeBasic(argv[:len(argv)-1])
		if void {
			return nil, err
		}
		return res, err
	}
}

// fastLinkToCallSite handles (args..., site) => site.Target().invokeBasic(args...).
func fastLinkToCallSite(f *LambdaForm) func(argv []any) (any, error) {
	if f.arity < 1 || len(f.names) != f.arity+2 {
		return nil
	}
	void, arity := f.result < 0, f.arity
	return func(argv []any) (any, error) {
		if len(argv) != arity {
			return nil, arityMismatch(FormLinkToCallSite, len(argv), arity)
		}
		site, ok := argv[len(argv)-1].(*CallSite)
		if !ok {
			return nil, &ClassCastError{From: describeValue(argv[len(argv)-1]), To: CallSiteClass.Name}
		}
		res, err := site.Target().invokeBasic(argv[:len(argv)-1])
		if void {
			return nil, err
		}
		return res, err
	}
}

// fastDirectInvoke handles the barrier-free direct invoke shapes
// (handle, args...) => linkToX(args..., handle.member).
func fastDirectInvoke(kind RefKind, link string) func(f *LambdaForm) func(argv []any) (any, error) {
	return func(f *LambdaForm) func(argv []any) (any, error) {
		if len(f.names) != f.arity+2 || f.names[f.arity].fn != nfInternalMemberName ||
			f.names[f.arity+1].fn.name != link {
			return nil
		}
		void, arity, formKind := f.result < 0, f.arity, f.kind
		return func(argv []any) (any, error) {
			if len(argv) != arity {
				return nil, arityMismatch(formKind, len(argv), arity)
			}
			mh, err := asHandle(argv[0])
			if err != nil {
				return nil, err
			}
			res, err := callMember(mh.member, kind, argv[1:])
			if void {
				return nil, err
			}
			return res, err
		}
	}
}
