package aot

import (
	"fmt"

	"github.com/chazu/indy/vm"
)

// InstallStats reports what Install did.
type InstallStats struct {
	Carriers int // carrier classes defined
	Species  int // species linked
	Forms    int // forms prepared and compiled
}

// Install loads an archive into rt. Carrier classes are defined from their
// stored images first, so resolving their species links the existing
// classes instead of generating new ones. Forms are prepared, checked
// against their stored listing and compiled.
func Install(rt *vm.Runtime, a *Archive) (InstallStats, error) {
	var st InstallStats
	for _, s := range a.Species {
		if _, ok := rt.Classes().Lookup(s.Carrier); !ok {
			if _, err := rt.DefineClass(s.Carrier, s.Image); err != nil {
				return st, fmt.Errorf("aot: define %s: %w", s.Carrier, err)
			}
			st.Carriers++
		}
	}
	for _, s := range a.Species {
		sd, err := rt.FindSpecies(s.Key)
		if err != nil {
			return st, fmt.Errorf("aot: link species %s: %w", s.Key, err)
		}
		if sd.Carrier().Name != s.Carrier {
			return st, fmt.Errorf("aot: species %s linked to %s, archive has %s", s.Key, sd.Carrier().Name, s.Carrier)
		}
		st.Species++
	}
	for _, f := range a.Forms {
		lf, err := rt.PrepareForm(f.Holder, f.Name, f.Sig)
		if err != nil {
			return st, fmt.Errorf("aot: prepare %s %s %s: %w", f.Holder, f.Name, f.Sig, err)
		}
		if got := lf.String(); got != f.Listing {
			return st, fmt.Errorf("aot: form %s %s %s differs from archive:\n have %s\n want %s",
				f.Holder, f.Name, f.Sig, got, f.Listing)
		}
		lf.Compile()
		st.Forms++
	}
	log.Infof("installed %d carriers, %d species, %d forms", st.Carriers, st.Species, st.Forms)
	return st, nil
}
