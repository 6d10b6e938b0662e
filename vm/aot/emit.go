package aot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/indy/vm"
)

// buildNamespace seeds archive build IDs.
var buildNamespace = uuid.MustParse("6f1d3c52-7a0e-4b8e-9a53-2f8e0b1c4d77")

// Emitter replays traces into archives.
type Emitter struct {
	// Workers bounds parallel replay. Zero means GOMAXPROCS.
	Workers int
	// Options configures the replay runtime. Trace is ignored.
	Options vm.Options
}

// Emit replays events in a fresh runtime and archives every species and
// form they name. Species are resolved before forms. The result depends
// only on the set of events, not their order or the worker count.
func (e *Emitter) Emit(ctx context.Context, events []vm.TraceEvent) (*Archive, error) {
	opts := e.Options
	opts.Trace = nil
	rt := vm.NewRuntime(opts)

	var species, forms []vm.TraceEvent
	for _, ev := range events {
		if ev.Kind == vm.TraceSpecies {
			species = append(species, ev)
		} else {
			forms = append(forms, ev)
		}
	}
	if err := e.replay(ctx, rt, species); err != nil {
		return nil, err
	}
	if err := e.replay(ctx, rt, forms); err != nil {
		return nil, err
	}

	a, err := Collect(rt)
	if err != nil {
		return nil, err
	}
	log.Infof("archived %d species and %d forms", len(a.Species), len(a.Forms))
	return a, nil
}

func (e *Emitter) replay(ctx context.Context, rt *vm.Runtime, events []vm.TraceEvent) error {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, ev := range events {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := rt.ResolveTraceEvent(ev); err != nil {
				return fmt.Errorf("aot: replay %q: %w", ev.String(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Collect archives everything rt has resolved so far.
func Collect(rt *vm.Runtime) (*Archive, error) {
	events := rt.TraceEvents()
	a := &Archive{}
	for _, ev := range events {
		switch ev.Kind {
		case vm.TraceSpecies:
			name, img, err := rt.CarrierImage(ev.Key)
			if err != nil {
				return nil, fmt.Errorf("aot: species %s: %w", ev.Key, err)
			}
			a.Species = append(a.Species, SpeciesRecord{Key: ev.Key, Carrier: name, Image: img})
		case vm.TraceForm:
			f, err := rt.PrepareForm(ev.Holder, ev.Name, ev.Sig)
			if err != nil {
				return nil, fmt.Errorf("aot: form %s: %w", ev.String(), err)
			}
			a.Forms = append(a.Forms, FormRecord{Holder: ev.Holder, Name: ev.Name, Sig: ev.Sig, Listing: f.String()})
		}
	}
	sort.Slice(a.Species, func(i, j int) bool { return a.Species[i].Key < a.Species[j].Key })
	sort.Slice(a.Forms, func(i, j int) bool { return formKey(a.Forms[i]) < formKey(a.Forms[j]) })

	lines := make([]string, 0, len(a.Species)+len(a.Forms))
	for _, s := range a.Species {
		lines = append(lines, vm.TraceEvent{Kind: vm.TraceSpecies, Key: s.Key}.String())
	}
	for _, f := range a.Forms {
		lines = append(lines, formKey(f))
	}
	a.BuildID = uuid.NewSHA1(buildNamespace, []byte(strings.Join(lines, "\n"))).String()
	return a, nil
}

func formKey(f FormRecord) string {
	return vm.TraceEvent{Kind: vm.TraceForm, Holder: f.Holder, Name: f.Name, Sig: f.Sig}.String()
}
