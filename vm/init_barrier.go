package vm

import "sync"

// initTracker remembers which classes a runtime has observed initialized.
// Entries are only ever added, so barrier elision never reverts.
type initTracker struct {
	seen sync.Map // *Class -> struct{}
}

// isInitialized reports whether c is known to be initialized, recording
// the observation the first time it is made.
func (t *initTracker) isInitialized(c *Class) bool {
	if _, ok := t.seen.Load(c); ok {
		return true
	}
	if c.IsInitialized() {
		t.seen.Store(c, struct{}{})
		return true
	}
	return false
}

func (t *initTracker) record(c *Class) {
	t.seen.Store(c, struct{}{})
}

// Observed returns how many classes the tracker has recorded.
func (t *initTracker) Observed() int {
	n := 0
	t.seen.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ensureInitialized is the class-initialization barrier. It runs the
// owner's static initializer if needed, then upgrades the handle to the
// barrier-free form so later calls skip the check.
func ensureInitialized(mh *MethodHandle) error {
	ref := mh.member
	owner := ref.Owner
	if err := owner.Initialize(); err != nil {
		return err
	}
	rt := mh.runtime()
	rt.inits.record(owner)

	cur := mh.form.Load()
	if !hasInitBarrier(cur) {
		return nil
	}
	free := rt.directForm(ref, mh.typ, false)
	if mh.form.CompareAndSwap(cur, free) {
		vmLog.Debugf("elided init barrier for %s", ref.Key())
	}
	return nil
}

// hasInitBarrier reports whether f initializes a class before its call.
func hasInitBarrier(f *LambdaForm) bool {
	switch f.kind {
	case FormDirectInvokeStaticInit, FormDirectNewInvokeSpecialInit:
		return true
	case FormFieldAccess, FormDirectArrayCall:
		return f.Uses(nfStaticBaseEnsureInit.name) || f.Uses(nfInternalMemberNameEnsureInit.name)
	}
	return false
}
