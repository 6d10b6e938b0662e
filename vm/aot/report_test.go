package aot

import (
	"bytes"
	"strings"
	"testing"
)

func TestReport(t *testing.T) {
	a := emit(t, 0, sampleEvents(t))
	r, err := NewReport(a)
	if err != nil {
		t.Fatal(err)
	}
	if r.BuildID != a.BuildID || len(r.Species) != len(a.Species) || len(r.Forms) != len(a.Forms) {
		t.Fatalf("report = %+v", r)
	}

	var ldj *SpeciesReport
	for i := range r.Species {
		if r.Species[i].Key == "LDJ" {
			ldj = &r.Species[i]
		}
	}
	if ldj == nil {
		t.Fatal("LDJ missing from report")
	}
	if ldj.Carrier != "BoundHandle$Species_LDJ" || len(ldj.Fields) != 3 || ldj.Bytes == 0 {
		t.Errorf("LDJ = %+v", ldj)
	}
	if !strings.HasPrefix(ldj.Fields[1], "D1:") {
		t.Errorf("fields = %v", ldj.Fields)
	}

	var buf bytes.Buffer
	if err := r.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "build-id: "+a.BuildID) {
		t.Errorf("yaml =\n%s", buf.String())
	}
	back, err := ReadReport(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if back.BuildID != r.BuildID || len(back.Species) != len(r.Species) || back.Forms[0] != r.Forms[0] {
		t.Errorf("round trip = %+v", back)
	}
}

func TestReportBadImage(t *testing.T) {
	a := &Archive{Species: []SpeciesRecord{{Key: "L", Carrier: "X", Image: []byte{0xff}}}}
	if _, err := NewReport(a); err == nil {
		t.Error("expected a decode error")
	}
}
