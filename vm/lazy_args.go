package vm

import (
	"strconv"
	"sync/atomic"
)

// BootstrapCallInfo is what a pull-style bootstrap routine receives in
// place of positional static arguments. Arguments are fetched on demand
// and cached.
type BootstrapCallInfo interface {
	// InvocationName is the name of the call site or constant.
	InvocationName() string
	// InvocationType is a *Signature for call sites and a *Class for
	// constants.
	InvocationType() any
	// Size is the number of static arguments.
	Size() int
	// Get returns static argument i.
	Get(i int) (any, error)
	// CopyInto copies arguments [start, end) into dst starting at pos.
	CopyInto(start, end int, dst []any, pos int) error
}

// ArgFetcher resolves static argument i.
type ArgFetcher func(i int) (any, error)

type argCell struct{ v any }

// lazyArgs is the caching BootstrapCallInfo. Every demand also prefetches
// a batch as large as the demand past its end, so a routine reading its
// arguments one at a time or in growing chunks fetches in doubling
// batches. Prefetch stops at the first cached slot and is skipped once the
// cache is more full than empty. A racing fetch that finds its slot filled
// drops its value.
type lazyArgs struct {
	name  string
	typ   any
	fetch ArgFetcher
	cells []atomic.Pointer[argCell]

	filled    atomic.Int32
	fetches   atomic.Int32
	discarded atomic.Int32
}

func newLazyArgs(name string, typ any, n int, fetch ArgFetcher) *lazyArgs {
	return &lazyArgs{
		name:  name,
		typ:   typ,
		fetch: fetch,
		cells: make([]atomic.Pointer[argCell], n),
	}
}

// eagerArgs wraps an already resolved argument list.
func eagerArgs(name string, typ any, vals []any) *lazyArgs {
	l := newLazyArgs(name, typ, len(vals), func(i int) (any, error) { return vals[i], nil })
	for i, v := range vals {
		l.store(i, v)
	}
	return l
}

func (l *lazyArgs) InvocationName() string { return l.name }

func (l *lazyArgs) InvocationType() any { return l.typ }

func (l *lazyArgs) Size() int { return len(l.cells) }

func (l *lazyArgs) Get(i int) (any, error) {
	var one [1]any
	if err := l.CopyInto(i, i+1, one[:], 0); err != nil {
		return nil, err
	}
	return one[0], nil
}

func (l *lazyArgs) CopyInto(start, end int, dst []any, pos int) error {
	if start < 0 || end > len(l.cells) || start > end {
		return &IllegalArgumentError{Msg: "static argument range [" + strconv.Itoa(start) + ", " +
			strconv.Itoa(end) + ") out of bounds for " + strconv.Itoa(len(l.cells))}
	}
	if pos < 0 || pos+(end-start) > len(dst) {
		return &IllegalArgumentError{Msg: "destination too small for static arguments"}
	}
	for i := start; i < end; i++ {
		if l.cells[i].Load() != nil {
			continue
		}
		v, err := l.fetchOne(i)
		if err != nil {
			return err
		}
		l.store(i, v)
	}
	l.prefetch(end, end-start)
	for i := start; i < end; i++ {
		dst[pos+i-start] = l.cells[i].Load().v
	}
	return nil
}

func (l *lazyArgs) fetchOne(i int) (any, error) {
	l.fetches.Add(1)
	return l.fetch(i)
}

func (l *lazyArgs) store(i int, v any) {
	if l.cells[i].CompareAndSwap(nil, &argCell{v: v}) {
		l.filled.Add(1)
		return
	}
	l.discarded.Add(1)
}

// prefetch speculatively fetches up to batch slots from index from.
// Failures are left for a later demand to report.
func (l *lazyArgs) prefetch(from, batch int) {
	n := len(l.cells)
	if int(l.filled.Load())*2 > n {
		return
	}
	for i := from; i < n && i < from+batch; i++ {
		if l.cells[i].Load() != nil {
			return
		}
		v, err := l.fetchOne(i)
		if err != nil {
			return
		}
		l.store(i, v)
	}
}

// materialize fetches every argument.
func (l *lazyArgs) materialize() ([]any, error) {
	out := make([]any, len(l.cells))
	if err := l.CopyInto(0, len(l.cells), out, 0); err != nil {
		return nil, err
	}
	return out, nil
}
