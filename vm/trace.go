package vm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Resolution trace
// ---------------------------------------------------------------------------
//
// A runtime records the first resolution of every species and shared form
// in a ledger. Written out, the ledger is a line-oriented trace:
//
//	SPECIES_RESOLVE <key>
//	LF_RESOLVE <holder> <name> <basic-signature>
//
// The basic signature is the form's own entry shape, leading handle
// parameter included. Replaying a trace regenerates the same species and
// forms in a fresh runtime.

// Form holders named in LF_RESOLVE lines.
const (
	holderDirect   = "DirectHandle"
	holderInvokers = "Invokers"
)

// TraceKind identifies a trace line.
type TraceKind uint8

const (
	TraceSpecies TraceKind = iota
	TraceForm
)

const (
	speciesTag = "SPECIES_RESOLVE"
	formTag    = "LF_RESOLVE"
)

func (k TraceKind) String() string {
	if k == TraceSpecies {
		return speciesTag
	}
	return formTag
}

// TraceEvent is one resolution event.
type TraceEvent struct {
	Kind   TraceKind
	Key    string // species key
	Holder string
	Name   string
	Sig    string // basic signature, e.g. "LL_L"
}

// String renders the event as a trace line without the newline.
func (e TraceEvent) String() string {
	if e.Kind == TraceSpecies {
		return speciesTag + " " + e.Key
	}
	return formTag + " " + e.Holder + " " + e.Name + " " + e.Sig
}

// ParseTraceEvent parses one trace line.
func ParseTraceEvent(line string) (TraceEvent, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return TraceEvent{}, fmt.Errorf("vm: empty trace line")
	}
	switch f[0] {
	case speciesTag:
		if len(f) != 2 {
			return TraceEvent{}, fmt.Errorf("vm: malformed trace line %q", line)
		}
		return TraceEvent{Kind: TraceSpecies, Key: f[1]}, nil
	case formTag:
		if len(f) != 4 {
			return TraceEvent{}, fmt.Errorf("vm: malformed trace line %q", line)
		}
		return TraceEvent{Kind: TraceForm, Holder: f[1], Name: f[2], Sig: f[3]}, nil
	}
	return TraceEvent{}, fmt.Errorf("vm: unknown trace event %q", f[0])
}

// ReadTrace parses a trace, skipping blank lines and lines starting with #.
func ReadTrace(r io.Reader) ([]TraceEvent, error) {
	var out []TraceEvent
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseTraceEvent(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vm: read trace: %w", err)
	}
	return out, nil
}

// WriteTrace writes events one per line.
func WriteTrace(w io.Writer, events []TraceEvent) error {
	bw := bufio.NewWriter(w)
	for _, e := range events {
		if _, err := bw.WriteString(e.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ledger keeps the first occurrence of every event in order and echoes new
// events to an optional writer.
type ledger struct {
	seen sync.Map // string -> struct{}

	mu     sync.Mutex
	events []TraceEvent
	out    io.Writer
}

func (l *ledger) record(e TraceEvent) {
	line := e.String()
	if _, dup := l.seen.LoadOrStore(line, struct{}{}); dup {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if l.out != nil {
		if _, err := io.WriteString(l.out, line+"\n"); err != nil {
			vmLog.Warningf("trace write failed: %s", err)
		}
	}
}

func (l *ledger) snapshot() []TraceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TraceEvent(nil), l.events...)
}

func (rt *Runtime) recordSpecies(key string) {
	rt.ledger.record(TraceEvent{Kind: TraceSpecies, Key: key})
}

func (rt *Runtime) recordForm(holder, name string, f *LambdaForm) {
	rt.ledger.record(TraceEvent{
		Kind:   TraceForm,
		Holder: holder,
		Name:   name,
		Sig:    f.basicString(),
	})
}

// TraceEvents returns the runtime's resolution events in first-seen order.
func (rt *Runtime) TraceEvents() []TraceEvent {
	return rt.ledger.snapshot()
}

// ResolveTraceEvent replays one event: a species event resolves the
// species, a form event prepares the form.
func (rt *Runtime) ResolveTraceEvent(e TraceEvent) error {
	if e.Kind == TraceSpecies {
		_, err := rt.FindSpecies(e.Key)
		return err
	}
	_, err := rt.PrepareForm(e.Holder, e.Name, e.Sig)
	return err
}

// PrepareForm builds (or finds) the shared form named by holder, name and
// the form's basic signature, exactly as on-demand resolution would.
func (rt *Runtime) PrepareForm(holder, name, basicSig string) (*LambdaForm, error) {
	if holder == holderDirect && strings.HasPrefix(name, FormDirectArrayCall.String()+".") {
		f, err := rt.prepareDirectArray(name, basicSig)
		if err != nil {
			return nil, err
		}
		rt.recordForm(holder, name, f)
		return f, nil
	}
	full, err := ParseBasicSignature(basicSig)
	if err != nil {
		return nil, err
	}
	var f *LambdaForm
	switch holder {
	case holderDirect:
		f, err = rt.prepareDirect(name, full)
	case holderInvokers:
		f, err = rt.prepareInvoker(name, full)
	default:
		err = fmt.Errorf("vm: unknown form holder %q", holder)
	}
	if err != nil {
		return nil, err
	}
	rt.recordForm(holder, name, f)
	return f, nil
}

// prepareDirect rebuilds a direct invoke or field form. The handle's
// signature is the form's without the leading handle parameter.
func (rt *Runtime) prepareDirect(name string, full *Signature) (*LambdaForm, error) {
	if full.ParameterCount() == 0 || full.ParameterBasicTypes()[0] != LType {
		return nil, fmt.Errorf("vm: direct form %s needs a leading handle parameter", name)
	}
	typ, err := full.DropParameterTypes(0, 1)
	if err != nil {
		return nil, err
	}
	if a, ok := fieldAccessors[name]; ok {
		return rt.fieldForm(a, typ), nil
	}
	kind, ok := FormKindByName(name)
	if !ok {
		return nil, fmt.Errorf("vm: unknown direct form %q", name)
	}
	if !isDirectInvokeKind(kind) {
		return nil, fmt.Errorf("vm: %q is not a direct form", name)
	}
	return cachedForm(typ, kind, func(basic *Signature) *LambdaForm {
		return buildDirectForm(basic, kind, false)
	}), nil
}

// prepareDirectArray rebuilds an array-call form. Its full signature may
// exceed the slot ceiling, so only the handle's signature is interned.
func (rt *Runtime) prepareDirectArray(name, basicSig string) (*LambdaForm, error) {
	kind, ok := FormKindByName(strings.TrimPrefix(name, FormDirectArrayCall.String()+"."))
	if !ok || !isDirectInvokeKind(kind) {
		return nil, fmt.Errorf("vm: %q is not an array-call form", name)
	}
	text := strings.TrimSpace(basicSig)
	if !strings.HasPrefix(text, "L") {
		return nil, fmt.Errorf("vm: direct form %s needs a leading handle parameter", name)
	}
	typ, err := ParseBasicSignature(text[1:])
	if err != nil {
		return nil, err
	}
	if typ.slots+2 <= MaxJVMArity {
		return nil, fmt.Errorf("vm: %s %s fits a direct call", name, basicSig)
	}
	return directArrayForm(typ, kind), nil
}

func isDirectInvokeKind(kind FormKind) bool {
	switch kind {
	case FormDirectInvokeVirtual, FormDirectInvokeInterface, FormDirectInvokeStatic,
		FormDirectInvokeStaticInit, FormDirectInvokeSpecial, FormDirectInvokeSpecialChecked,
		FormDirectNewInvokeSpecial, FormDirectNewInvokeSpecialInit:
		return true
	}
	return false
}

// prepareInvoker rebuilds an invoker or linker form.
func (rt *Runtime) prepareInvoker(name string, full *Signature) (*LambdaForm, error) {
	kind, ok := FormKindByName(name)
	if !ok {
		return nil, fmt.Errorf("vm: unknown invoker form %q", name)
	}
	pts := full.ParameterBasicTypes()
	switch kind {
	case FormExactInvoker, FormGenericInvoker:
		if len(pts) < 2 || pts[0] != LType || pts[1] != LType {
			return nil, fmt.Errorf("vm: invoker form %s needs two leading references", name)
		}
		sig, err := full.DropParameterTypes(0, 2)
		if err != nil {
			return nil, err
		}
		sd, err := rt.FindSpecies("L")
		if err != nil {
			return nil, err
		}
		check := nfCheckExactType
		if kind == FormGenericInvoker {
			check = nfCheckGenericType
		}
		return sd.invokerForm(sig, kind, check), nil
	case FormLinkToTargetMethod, FormLinkToCallSite:
		if len(pts) == 0 || pts[len(pts)-1] != LType {
			return nil, fmt.Errorf("vm: linker form %s needs a trailing appendix", name)
		}
		sig, err := full.DropParameterTypes(len(pts)-1, len(pts))
		if err != nil {
			return nil, err
		}
		if kind == FormLinkToCallSite {
			return linkToCallSiteForm(sig), nil
		}
		return linkToTargetMethodForm(sig), nil
	}
	return nil, fmt.Errorf("vm: %q is not an invoker form", name)
}
