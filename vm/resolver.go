package vm

import "strings"

// AccessMode is the set of access privileges a lookup context holds.
type AccessMode uint8

const (
	AccessPublic AccessMode = 1 << iota
	AccessPrivate
	AccessPackage
	AccessProtected

	AccessAll = AccessPublic | AccessPrivate | AccessPackage | AccessProtected
)

// Has reports whether every mode in m2 is present.
func (m AccessMode) Has(m2 AccessMode) bool { return m&m2 == m2 }

func (m AccessMode) String() string {
	if m == AccessAll {
		return "all"
	}
	var parts []string
	for _, p := range []struct {
		mode AccessMode
		name string
	}{
		{AccessPublic, "public"}, {AccessPrivate, "private"},
		{AccessPackage, "package"}, {AccessProtected, "protected"},
	} {
		if m.Has(p.mode) {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// AccessChecker is the access-control oracle consulted during resolution.
type AccessChecker interface {
	IsAccessible(ref *MemberRef, from *Class, modes AccessMode) bool
}

// AccessFunc adapts a function to AccessChecker.
type AccessFunc func(ref *MemberRef, from *Class, modes AccessMode) bool

// IsAccessible calls f.
func (f AccessFunc) IsAccessible(ref *MemberRef, from *Class, modes AccessMode) bool {
	return f(ref, from, modes)
}

// DefaultAccess applies modifier-based visibility: public members are
// visible everywhere, private ones within the owner and its nested classes,
// package-private ones within the owner's package, and protected ones to
// the package and to subclasses.
type DefaultAccess struct{}

// IsAccessible implements AccessChecker.
func (DefaultAccess) IsAccessible(ref *MemberRef, from *Class, modes AccessMode) bool {
	if from == nil {
		return ref.mods.Has(ModPublic) && ref.Owner.Modifiers.Has(ModPublic) && modes.Has(AccessPublic)
	}
	if from == ref.Owner {
		return modes != 0
	}
	samePkg := packageOf(from.Name) == packageOf(ref.Owner.Name)
	if !ref.Owner.Modifiers.Has(ModPublic) && !ref.Owner.IsPrimitive() && !(samePkg && modes.Has(AccessPackage)) {
		return false
	}
	switch {
	case ref.mods.Has(ModPublic):
		return modes.Has(AccessPublic)
	case ref.mods.Has(ModPrivate):
		return modes.Has(AccessPrivate) && outermost(from.Name) == outermost(ref.Owner.Name)
	case ref.mods.Has(ModProtected):
		if samePkg && modes.Has(AccessPackage) {
			return true
		}
		return modes.Has(AccessProtected) && ref.Owner.IsAssignableFrom(from)
	}
	return samePkg && modes.Has(AccessPackage)
}

func packageOf(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		return name[:i]
	}
	return ""
}

func outermost(name string) string {
	if i := strings.IndexByte(name, '$'); i >= 0 {
		return name[:i]
	}
	return name
}

// Resolver turns symbolic references into resolved ones.
type Resolver struct {
	access AccessChecker
}

// NewResolver creates a resolver using the given access oracle. A nil
// oracle means DefaultAccess.
func NewResolver(access AccessChecker) *Resolver {
	if access == nil {
		access = DefaultAccess{}
	}
	return &Resolver{access: access}
}

// Resolve looks up the member named by ref on behalf of from, checking
// access against modes. It returns a new resolved reference; ref itself is
// not modified.
func (r *Resolver) Resolve(ref *MemberRef, from *Class, modes AccessMode) (*MemberRef, error) {
	if ref.state == refResolved {
		return ref, nil
	}
	out := r.resolve(ref, from, modes)
	if out.state == refFailed {
		return nil, out.err
	}
	return out, nil
}

// ResolveOrFailed is like Resolve but returns the failed reference instead
// of an error. The cause is available from Err.
func (r *Resolver) ResolveOrFailed(ref *MemberRef, from *Class, modes AccessMode) *MemberRef {
	if ref.state == refResolved {
		return ref
	}
	return r.resolve(ref, from, modes)
}

func (r *Resolver) resolve(ref *MemberRef, from *Class, modes AccessMode) *MemberRef {
	out := ref.clone()
	fail := func(err error) *MemberRef {
		out.state = refFailed
		out.err = err
		out.method, out.field = nil, nil
		vmLog.Debugf("resolution failed: %s: %v", ref.Key(), err)
		return out
	}

	if ref.Kind.IsField() {
		f := ref.Owner.FindField(ref.Name)
		if f == nil {
			return fail(&NoSuchMemberError{Member: ref.Key()})
		}
		if f.Type != ref.ftype {
			return fail(&NoSuchMemberError{Member: ref.Key() + " (declared " + f.Type.Name + ")"})
		}
		if f.IsStatic() != ref.Kind.IsStatic() {
			return fail(&LinkageError{Msg: "static mismatch for " + ref.Key()})
		}
		out.field = f
		out.mods = f.Modifiers
	} else {
		m, err := findMethod(ref)
		if err != nil {
			return fail(err)
		}
		out.method = m
		out.mods = m.Modifiers
	}

	if !r.access.IsAccessible(out, from, modes) {
		return fail(&AccessError{Member: ref.Key(), From: describeClass(from)})
	}
	if ref.Kind.IsSetter() && out.mods.Has(ModFinal) && from != ref.Owner {
		return fail(&AccessError{Member: ref.Key() + " (final)", From: describeClass(from)})
	}

	out.state = refResolved
	out.err = nil
	switch ref.Kind {
	case RefInvokeVirtual, RefInvokeInterface:
		out.cache = &InlineCache{}
	}
	return out
}

func findMethod(ref *MemberRef) (*Method, error) {
	switch ref.Kind {
	case RefNewInvokeSpecial:
		if ref.sig.ReturnType() != VoidClass {
			return nil, &LinkageError{Msg: "constructor must return void: " + ref.Key()}
		}
		if ref.Owner.Modifiers.Has(ModAbstract) {
			return nil, &LinkageError{Msg: "cannot instantiate abstract " + ref.Owner.Name}
		}
		m := ref.Owner.DeclaredMethod(ConstructorName, ref.sig)
		if m == nil {
			return nil, &NoSuchMemberError{Member: ref.Key()}
		}
		return m, nil
	case RefInvokeInterface:
		if !ref.Owner.IsInterface() {
			return nil, &LinkageError{Msg: ref.Owner.Name + " is not an interface"}
		}
	case RefInvokeVirtual:
		if ref.Owner.IsInterface() {
			return nil, &LinkageError{Msg: ref.Owner.Name + " is an interface"}
		}
	}
	m := ref.Owner.FindMethod(ref.Name, ref.sig)
	if m == nil || m.IsConstructor() {
		return nil, &NoSuchMemberError{Member: ref.Key()}
	}
	if m.IsStatic() != (ref.Kind == RefInvokeStatic) {
		return nil, &LinkageError{Msg: "static mismatch for " + ref.Key()}
	}
	return m, nil
}
