package aot

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/chazu/indy/vm"
)

// Report is the human-readable summary of an archive.
type Report struct {
	BuildID string          `yaml:"build-id"`
	Species []SpeciesReport `yaml:"species"`
	Forms   []FormReport    `yaml:"forms"`
}

// SpeciesReport describes one carrier.
type SpeciesReport struct {
	Key     string   `yaml:"key"`
	Carrier string   `yaml:"carrier"`
	Fields  []string `yaml:"fields"`
	Bytes   int      `yaml:"bytes"`
}

// FormReport describes one form.
type FormReport struct {
	Holder  string `yaml:"holder"`
	Name    string `yaml:"name"`
	Sig     string `yaml:"sig"`
	Listing string `yaml:"listing"`
}

// NewReport summarizes a.
func NewReport(a *Archive) (*Report, error) {
	r := &Report{BuildID: a.BuildID}
	for _, s := range a.Species {
		img, err := vm.DecodeClassImage(s.Image)
		if err != nil {
			return nil, fmt.Errorf("aot: species %s: %w", s.Key, err)
		}
		sr := SpeciesReport{Key: s.Key, Carrier: s.Carrier, Bytes: len(s.Image)}
		for _, f := range img.Fields {
			sr.Fields = append(sr.Fields, f.Name+":"+f.Type)
		}
		r.Species = append(r.Species, sr)
	}
	for _, f := range a.Forms {
		r.Forms = append(r.Forms, FormReport{Holder: f.Holder, Name: f.Name, Sig: f.Sig, Listing: f.Listing})
	}
	return r, nil
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("aot: encode report: %w", err)
	}
	return enc.Close()
}

// ReadReport parses a YAML report.
func ReadReport(data []byte) (*Report, error) {
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("aot: parse report: %w", err)
	}
	return &r, nil
}
