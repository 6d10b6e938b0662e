package vm

// NamedFunction is a primitive a lambda-form temporary can apply. The set
// of primitives is small and fixed; forms are built exclusively from them.
type NamedFunction struct {
	name  string
	rtype BasicType
	fn    func(args []any) (any, error)
}

func newNamedFunction(name string, rtype BasicType, fn func(args []any) (any, error)) *NamedFunction {
	return &NamedFunction{name: name, rtype: rtype, fn: fn}
}

// Name returns the primitive's name as it appears in form renderings.
func (nf *NamedFunction) Name() string { return nf.name }

// ReturnType returns the basic type of the primitive's result.
func (nf *NamedFunction) ReturnType() BasicType { return nf.rtype }

func (nf *NamedFunction) String() string { return nf.name + ":" + nf.rtype.String() }

func (nf *NamedFunction) invoke(args []any) (any, error) { return nf.fn(args) }

// typedFunctions holds one variant of a primitive per result basic type.
// The variants share behavior and differ only in the declared result type.
type typedFunctions [basicTypeLimit]*NamedFunction

func newTypedFunctions(name string, fn func(args []any) (any, error)) typedFunctions {
	var out typedFunctions
	for t := range out {
		out[t] = newNamedFunction(name, BasicType(t), fn)
	}
	return out
}

// of returns the variant producing t.
func (tf *typedFunctions) of(t BasicType) *NamedFunction { return tf[t] }
