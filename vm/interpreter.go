package vm

import "strconv"

// interpret evaluates the form by walking its temporaries in order. It is
// the slow path used until the form is compiled.
func (f *LambdaForm) interpret(argv []any) (any, error) {
	if len(argv) != f.arity {
		return nil, arityMismatch(f.kind, len(argv), f.arity)
	}
	values := make([]any, len(f.names))
	copy(values, argv)
	for _, n := range f.names[f.arity:] {
		in := make([]any, len(n.args))
		for j, a := range n.args {
			if ref, ok := a.(*Name); ok {
				in[j] = values[ref.index]
			} else {
				in[j] = a
			}
		}
		v, err := n.fn.invoke(in)
		if err != nil {
			return nil, err
		}
		values[n.index] = v
	}
	if f.result < 0 {
		return nil, nil
	}
	return values[f.result], nil
}

// arityMismatch reports a form called with the wrong number of arguments.
func arityMismatch(kind FormKind, have, want int) error {
	return &WrongMethodTypeError{
		Have: strconv.Itoa(have) + " arguments",
		Want: strconv.Itoa(want) + " for " + kind.String(),
	}
}
