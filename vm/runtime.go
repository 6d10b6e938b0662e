package vm

import (
	"io"
	"sync"
)

// Options configures a Runtime.
type Options struct {
	// CompileThreshold sets the process-wide form compile threshold when
	// non-zero. Forms are shared by every runtime, so a later runtime's
	// setting replaces an earlier one's.
	CompileThreshold int
	// BackgroundCompile turns on the process-wide form compiler worker.
	// Like the threshold it applies to every runtime; it is never turned
	// off by a runtime created without it.
	BackgroundCompile bool
	// Trace, when set, receives every new resolution event as a trace line.
	Trace io.Writer
	// MaxClasses caps the number of carrier classes the runtime may define.
	// Zero is unlimited.
	MaxClasses int
	// SpeciesOwner prefixes carrier class names. Defaults to
	// DefaultSpeciesOwner.
	SpeciesOwner string
	// Access is the access oracle used by lookups. Defaults to DefaultAccess.
	Access AccessChecker
}

// Runtime owns the per-process linking state that is not shared through
// interned signatures: the class table, the species cache, the
// initialization tracker and the resolution ledger.
type Runtime struct {
	opts     Options
	classes  *ClassTable
	resolver *Resolver
	species  *speciesGenerator
	inits    initTracker
	ledger   ledger
}

// NewRuntime creates a runtime. The boot forms are compiled before it is
// returned so linking never depends on interpreting its own entry points.
// The compile policy in opts is process-wide; see Options.
func NewRuntime(opts Options) *Runtime {
	if n := opts.CompileThreshold; n != 0 && n != CompileThreshold() {
		vmLog.Infof("compile threshold %d -> %d for every runtime", CompileThreshold(), n)
		SetCompileThreshold(n)
	}
	if opts.BackgroundCompile && !Forms().Background() {
		vmLog.Infof("background form compilation on for every runtime")
		Forms().SetBackground(true)
	}
	rt := &Runtime{
		opts:     opts,
		classes:  NewClassTable(opts.MaxClasses),
		resolver: NewResolver(opts.Access),
	}
	rt.species = newSpeciesGenerator(rt, opts.SpeciesOwner)
	rt.ledger.out = opts.Trace
	compileBootForms()
	return rt
}

var defaultRuntime struct {
	once sync.Once
	rt   *Runtime
}

// Default returns the process default runtime, created on first use with
// zero Options.
func Default() *Runtime {
	defaultRuntime.once.Do(func() {
		defaultRuntime.rt = NewRuntime(Options{})
	})
	return defaultRuntime.rt
}

// Classes returns the runtime's class table.
func (rt *Runtime) Classes() *ClassTable { return rt.classes }

// Resolver returns the runtime's member resolver.
func (rt *Runtime) Resolver() *Resolver { return rt.resolver }

// Options returns the options the runtime was created with.
func (rt *Runtime) Options() Options { return rt.opts }

// DefineClass hands a carrier image to the class table.
func (rt *Runtime) DefineClass(name string, blob []byte) (*Class, error) {
	return rt.classes.DefineClass(name, blob)
}

// Resolve resolves a symbolic reference on behalf of from.
func (rt *Runtime) Resolve(ref *MemberRef, from *Class, modes AccessMode) (*MemberRef, error) {
	return rt.resolver.Resolve(ref, from, modes)
}

// DirectHandle returns a direct handle for a resolved reference.
func (rt *Runtime) DirectHandle(ref *MemberRef) (*MethodHandle, error) {
	return rt.newDirectHandle(ref)
}

// ---------------------------------------------------------------------------
// Boot forms
// ---------------------------------------------------------------------------

// bootShapes are the basic signatures whose entry forms every runtime
// needs before any user linking: call-site entries for small generic
// arities and the static invokes used by bootstrap routines.
var bootShapes = []string{
	"_V", "_L", "L_L", "LL_L", "LLL_L", "LLLL_L", "LLLLL_L", "LLLLLL_L",
	"L_V", "I_I", "_I", "LI_L",
}

var bootForms struct {
	once  sync.Once
	forms []*LambdaForm
}

// compileBootForms builds and compiles the boot forms in a fixed order.
func compileBootForms() {
	bootForms.once.Do(func() {
		for _, text := range bootShapes {
			sig, err := ParseBasicSignature(text)
			if err != nil {
				panic("vm: bad boot shape " + text + ": " + err.Error())
			}
			bootForms.forms = append(bootForms.forms,
				linkToTargetMethodForm(sig),
				linkToCallSiteForm(sig),
				cachedForm(sig, FormDirectInvokeStatic, func(basic *Signature) *LambdaForm {
					return buildDirectForm(basic, FormDirectInvokeStatic, false)
				}),
			)
		}
		Forms().CompileNow(bootForms.forms...)
		vmLog.Infof("compiled %d boot forms", len(bootForms.forms))
	})
}

// BootForms returns the forms compiled at startup, in boot order.
func BootForms() []*LambdaForm {
	compileBootForms()
	return append([]*LambdaForm(nil), bootForms.forms...)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Lookup creates direct handles on behalf of a caller, resolving and
// access-checking members with the caller's privileges.
type Lookup struct {
	rt     *Runtime
	caller *Caller
}

// Lookup returns a lookup for caller.
func (rt *Runtime) Lookup(caller *Caller) *Lookup {
	return &Lookup{rt: rt, caller: caller}
}

// Caller returns the lookup's caller context.
func (l *Lookup) Caller() *Caller { return l.caller }

func (l *Lookup) handle(ref *MemberRef, err error) (*MethodHandle, error) {
	if err != nil {
		return nil, err
	}
	resolved, err := l.rt.resolver.Resolve(ref, l.caller.Class, l.caller.Modes)
	if err != nil {
		return nil, err
	}
	return l.rt.newDirectHandle(resolved)
}

// FindStatic returns a handle for a static method.
func (l *Lookup) FindStatic(owner *Class, name string, sig *Signature) (*MethodHandle, error) {
	return l.handle(NewMethodRef(owner, name, sig, RefInvokeStatic))
}

// FindVirtual returns a handle for an instance method, dispatched on the
// receiver. Interface owners produce an interface invoke.
func (l *Lookup) FindVirtual(owner *Class, name string, sig *Signature) (*MethodHandle, error) {
	kind := RefInvokeVirtual
	if owner != nil && owner.IsInterface() {
		kind = RefInvokeInterface
	}
	return l.handle(NewMethodRef(owner, name, sig, kind))
}

// FindSpecial returns a handle that calls owner's implementation of a
// method without virtual dispatch. Receivers are restricted to
// specialCaller, which must be owner or a subclass of it.
func (l *Lookup) FindSpecial(owner *Class, name string, sig *Signature, specialCaller *Class) (*MethodHandle, error) {
	ref, err := NewMethodRef(owner, name, sig, RefInvokeSpecial)
	if err != nil {
		return nil, err
	}
	resolved, err := l.rt.resolver.Resolve(ref, l.caller.Class, l.caller.Modes)
	if err != nil {
		return nil, err
	}
	if specialCaller != nil {
		if !owner.IsAssignableFrom(specialCaller) {
			return nil, &AccessError{Member: ref.Key(), From: "special caller " + specialCaller.Name}
		}
		resolved = resolved.clone()
		resolved.specialCaller = specialCaller
	}
	return l.rt.newDirectHandle(resolved)
}

// FindConstructor returns a handle that allocates an owner and runs the
// constructor with signature sig (which returns void).
func (l *Lookup) FindConstructor(owner *Class, sig *Signature) (*MethodHandle, error) {
	return l.handle(NewMethodRef(owner, ConstructorName, sig, RefNewInvokeSpecial))
}

// FindGetter returns a handle reading an instance field.
func (l *Lookup) FindGetter(owner *Class, name string, ftype *Class) (*MethodHandle, error) {
	return l.handle(NewFieldRef(owner, name, ftype, RefGetField))
}

// FindSetter returns a handle writing an instance field.
func (l *Lookup) FindSetter(owner *Class, name string, ftype *Class) (*MethodHandle, error) {
	return l.handle(NewFieldRef(owner, name, ftype, RefPutField))
}

// FindStaticGetter returns a handle reading a static field.
func (l *Lookup) FindStaticGetter(owner *Class, name string, ftype *Class) (*MethodHandle, error) {
	return l.handle(NewFieldRef(owner, name, ftype, RefGetStatic))
}

// FindStaticSetter returns a handle writing a static field.
func (l *Lookup) FindStaticSetter(owner *Class, name string, ftype *Class) (*MethodHandle, error) {
	return l.handle(NewFieldRef(owner, name, ftype, RefPutStatic))
}
