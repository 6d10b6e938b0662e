package aot

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/chazu/indy/vm"
)

// sampleEvents names three species and two forms that a fresh runtime can
// prepare without any application classes.
func sampleEvents(t *testing.T) []vm.TraceEvent {
	t.Helper()
	lines := []string{
		"SPECIES_RESOLVE L",
		"SPECIES_RESOLVE LI",
		"SPECIES_RESOLVE LDJ",
		"LF_RESOLVE DirectHandle invokeStaticInit LLL_L",
		"LF_RESOLVE Invokers linkToCallSite LIL_I",
	}
	events, err := vm.ReadTrace(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatal(err)
	}
	return events
}

func emit(t *testing.T, workers int, events []vm.TraceEvent) *Archive {
	t.Helper()
	e := &Emitter{Workers: workers}
	a, err := e.Emit(context.Background(), events)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestEncodeDecode(t *testing.T) {
	a := emit(t, 2, sampleEvents(t))
	if len(a.Species) < 3 || len(a.Forms) != 2 {
		t.Fatalf("archive has %d species and %d forms", len(a.Species), len(a.Forms))
	}

	for _, compress := range []bool{false, true} {
		data, err := Encode(a, compress)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(data, []byte("INDY")) {
			t.Errorf("compress=%v: missing magic", compress)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("compress=%v: %v", compress, err)
		}
		if got.BuildID != a.BuildID || len(got.Species) != len(a.Species) || len(got.Forms) != len(a.Forms) {
			t.Errorf("compress=%v: decoded %+v", compress, got)
		}
		for i := range a.Species {
			if !bytes.Equal(got.Species[i].Image, a.Species[i].Image) || got.Species[i].Carrier != a.Species[i].Carrier {
				t.Errorf("compress=%v: species %d differs", compress, i)
			}
		}
		for i := range a.Forms {
			if got.Forms[i] != a.Forms[i] {
				t.Errorf("compress=%v: form %d = %+v", compress, i, got.Forms[i])
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good, err := Encode(&Archive{BuildID: "x"}, false)
	if err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "NOPE")

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9

	truncated := good[:len(good)-1]

	badCount := append([]byte(nil), good...)
	badCount[12] = 1

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", []byte("INDY"), "too short"},
		{"magic", badMagic, "magic"},
		{"version", badVersion, "version"},
		{"truncated", truncated, "truncated"},
		{"counts", badCount, "do not match"},
	}
	for _, tt := range tests {
		_, err := Decode(tt.data)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	events := sampleEvents(t)
	reversed := make([]vm.TraceEvent, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}

	first, err := Encode(emit(t, 1, events), false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encode(emit(t, 8, reversed), false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("archives differ across event order and worker count")
	}
}

func TestEmitBuildID(t *testing.T) {
	events := sampleEvents(t)
	a := emit(t, 0, events)
	b := emit(t, 0, events[:2])
	if a.BuildID == "" || a.BuildID == b.BuildID {
		t.Errorf("build IDs %q and %q", a.BuildID, b.BuildID)
	}
}

func TestEmitRejectsBadEvents(t *testing.T) {
	events := []vm.TraceEvent{{Kind: vm.TraceForm, Holder: "Nowhere", Name: "invokeStatic", Sig: "L_V"}}
	if _, err := (&Emitter{}).Emit(context.Background(), events); err == nil {
		t.Error("expected a replay error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Emitter{}).Emit(ctx, sampleEvents(t)); err == nil {
		t.Error("expected a cancellation error")
	}
}

func TestInstall(t *testing.T) {
	a := emit(t, 0, sampleEvents(t))

	rt := vm.NewRuntime(vm.Options{})
	st, err := Install(rt, a)
	if err != nil {
		t.Fatal(err)
	}
	if st.Carriers != len(a.Species) || st.Species != len(a.Species) || st.Forms != len(a.Forms) {
		t.Errorf("stats = %+v", st)
	}
	ss := rt.SpeciesStats()
	if ss.Generated != 0 {
		t.Errorf("installed species must not be generated, Generated = %d", ss.Generated)
	}
	if ss.Salvaged != uint64(len(a.Species)) {
		t.Errorf("Salvaged = %d, want %d", ss.Salvaged, len(a.Species))
	}
	for _, f := range a.Forms {
		lf, err := rt.PrepareForm(f.Holder, f.Name, f.Sig)
		if err != nil {
			t.Fatal(err)
		}
		if !lf.IsCompiled() {
			t.Errorf("%s %s %s should be compiled", f.Holder, f.Name, f.Sig)
		}
	}

	// A second install finds everything already in place.
	again, err := Install(rt, a)
	if err != nil {
		t.Fatal(err)
	}
	if again.Carriers != 0 {
		t.Errorf("reinstall defined %d carriers", again.Carriers)
	}
}

func TestInstallRejectsMismatches(t *testing.T) {
	a := emit(t, 0, sampleEvents(t))

	// A runtime that names its carriers differently links other classes.
	other := vm.NewRuntime(vm.Options{SpeciesOwner: "Elsewhere"})
	if _, err := Install(other, a); err == nil {
		t.Error("expected a carrier name mismatch")
	}

	tampered := *a
	tampered.Forms = append([]FormRecord(nil), a.Forms...)
	tampered.Forms[0].Listing = "bogus"
	if _, err := Install(vm.NewRuntime(vm.Options{}), &tampered); err == nil ||
		!strings.Contains(err.Error(), "differs from archive") {
		t.Errorf("err = %v", err)
	}
}
