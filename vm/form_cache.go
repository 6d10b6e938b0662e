package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Form caches
// ---------------------------------------------------------------------------
//
// Two levels. Shapes that depend only on (kind, basic signature) live in a
// dense array on the basic signature, indexed by FormKind. Everything else
// (field accessors, conversions) is interned process-wide by a string key
// describing its structure. Builders are pure functions of their key, so a
// lost race only wastes the losing build.

// cachedForm returns the kind-form for basic signature sig, building it on
// the first miss.
func cachedForm(sig *Signature, kind FormKind, build func(sig *Signature) *LambdaForm) *LambdaForm {
	sig = sig.BasicForm()
	slot := &sig.forms[kind]
	if f := slot.Load(); f != nil {
		return f
	}
	f := build(sig)
	if slot.CompareAndSwap(nil, f) {
		return f
	}
	return slot.Load()
}

// peekCachedForm returns the cached kind-form for sig without building it.
func peekCachedForm(sig *Signature, kind FormKind) *LambdaForm {
	return sig.BasicForm().forms[kind].Load()
}

// formInterner shares structurally identical forms keyed by shape.
var formInterner sync.Map // string -> *LambdaForm

// internForm returns the form registered under key, building it on the
// first miss.
func internForm(key string, build func() *LambdaForm) *LambdaForm {
	if v, ok := formInterner.Load(key); ok {
		return v.(*LambdaForm)
	}
	actual, _ := formInterner.LoadOrStore(key, build())
	return actual.(*LambdaForm)
}

// InternedFormKeys returns the keys of every interned form, sorted.
func InternedFormKeys() []string {
	var keys []string
	formInterner.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}
