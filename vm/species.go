package vm

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/indy/vm/reserve"
)

// ---------------------------------------------------------------------------
// Species
// ---------------------------------------------------------------------------
//
// A species is the carrier shape of a bound method handle: the basic types
// of the values it captures. Each species is backed by a generated carrier
// class named <owner>$Species_<key> with fields L0, I1, ... in key order.
// The generic carrier is the handle's bound slice; the class supplies the
// constructor, factory, getters and extenders that operate on it.

// DefaultSpeciesOwner prefixes carrier class names.
const DefaultSpeciesOwner = "BoundHandle"

// SpeciesData is the fully linked record of one species. Records are
// published only after every field is set and never change afterwards.
type SpeciesData struct {
	key     string
	types   []BasicType
	carrier *Class
	rt      *Runtime

	ctor    NativeFunc
	factory NativeFunc
	getters []*NamedFunction

	extensions [argTypeLimit]atomic.Pointer[SpeciesData]

	// Forms of handles of this species, keyed by shape.
	forms sync.Map
}

// Key returns the species key, one basic type character per field.
func (sd *SpeciesData) Key() string { return sd.key }

// FieldTypes returns the basic type of each field.
func (sd *SpeciesData) FieldTypes() []BasicType {
	return append([]BasicType(nil), sd.types...)
}

// FieldCount returns the number of captured values.
func (sd *SpeciesData) FieldCount() int { return len(sd.types) }

// Carrier returns the generated carrier class.
func (sd *SpeciesData) Carrier() *Class { return sd.carrier }

// Getter returns the named function reading field i of a carrier.
func (sd *SpeciesData) Getter(i int) *NamedFunction { return sd.getters[i] }

func (sd *SpeciesData) String() string { return "Species[" + sd.key + "]" }

// Extend returns the species with one more field of type t.
func (sd *SpeciesData) Extend(t BasicType) (*SpeciesData, error) {
	if t >= VType {
		return nil, &IllegalArgumentError{Msg: "species fields cannot be " + t.String()}
	}
	if ext := sd.extensions[t].Load(); ext != nil {
		return ext, nil
	}
	ext, err := sd.rt.FindSpecies(sd.key + string(t.Char()))
	if err != nil {
		return nil, err
	}
	sd.extensions[t].CompareAndSwap(nil, ext)
	return sd.extensions[t].Load(), nil
}

// make instantiates a carrier through the generated factory. vals are in
// basic representation.
func (sd *SpeciesData) make(typ *Signature, form *LambdaForm, vals []any) (*MethodHandle, error) {
	args := make([]any, 0, len(vals)+2)
	args = append(args, typ, form)
	args = append(args, vals...)
	v, err := sd.factory(args)
	if err != nil {
		return nil, err
	}
	return v.(*MethodHandle), nil
}

// form returns the species form registered under key, building it on the
// first miss.
func (sd *SpeciesData) form(key string, build func() *LambdaForm) *LambdaForm {
	if f, ok := sd.forms.Load(key); ok {
		return f.(*LambdaForm)
	}
	f, _ := sd.forms.LoadOrStore(key, build())
	return f.(*LambdaForm)
}

// ---------------------------------------------------------------------------
// Species generator
// ---------------------------------------------------------------------------

// speciesGenerator resolves species for one runtime.
type speciesGenerator struct {
	rt    *Runtime
	owner string
	cache reserve.Map[string, *SpeciesData]

	// linkHook, when set, runs after a carrier class is defined and before
	// the species is linked. Tests use it to simulate a crash in between.
	linkHook func(name string) error

	generated atomic.Uint64
	salvaged  atomic.Uint64
}

func newSpeciesGenerator(rt *Runtime, owner string) *speciesGenerator {
	if owner == "" {
		owner = DefaultSpeciesOwner
	}
	return &speciesGenerator{rt: rt, owner: owner}
}

// NormalizeSpeciesKey strips blanks from a key such as "L I" and validates
// every element. It returns the compact key and its basic types.
func NormalizeSpeciesKey(key string) (string, []BasicType, error) {
	compact := strings.Join(strings.Fields(key), "")
	if compact == "" {
		return "", nil, &IllegalArgumentError{Msg: "empty species key"}
	}
	types, err := ParseBasicTypes(compact)
	if err != nil {
		return "", nil, &IllegalArgumentError{Msg: "bad species key " + key + ": " + err.Error()}
	}
	for _, t := range types {
		if t == VType {
			return "", nil, &IllegalArgumentError{Msg: "species key " + key + " contains V"}
		}
	}
	if len(types) > MaxHandleArity {
		return "", nil, &IllegalArgumentError{Msg: "species key " + key + " is too long"}
	}
	return compact, types, nil
}

// FindSpecies returns the species for key, generating its carrier on first
// use. Concurrent requests for the same key observe one record.
//
// The cache belongs to the runtime, not the process: carriers are defined
// in the runtime's class table, so each runtime resolves its own record
// for a key. Within a runtime there is exactly one.
func (rt *Runtime) FindSpecies(key string) (*SpeciesData, error) {
	compact, types, err := NormalizeSpeciesKey(key)
	if err != nil {
		return nil, err
	}
	g := rt.species
	sd, err := g.cache.Get(compact, func() (*SpeciesData, error) {
		return g.resolve(compact, types)
	})
	if err != nil {
		var pe *reserve.PublishError
		if errors.As(err, &pe) {
			speciesLog.Criticalf("species %s: %s", compact, err)
			return nil, &ConcurrentResolutionError{Key: compact}
		}
		return nil, err
	}
	return sd, nil
}

// CarrierName returns the carrier class name of a species key.
func (g *speciesGenerator) CarrierName(key string) string {
	return g.owner + "$Species_" + key
}

// CarrierImage returns the carrier class name and encoded image the
// runtime generates for a species key.
func (rt *Runtime) CarrierImage(key string) (string, []byte, error) {
	compact, types, err := NormalizeSpeciesKey(key)
	if err != nil {
		return "", nil, err
	}
	name := rt.species.CarrierName(compact)
	blob, err := EncodeClassImage(speciesImage(name, BoundHandleClass.Name, compact, types))
	if err != nil {
		return "", nil, err
	}
	return name, blob, nil
}

// resolve builds the record for key. It runs exactly once per successful
// resolution, under the key's reservation.
func (g *speciesGenerator) resolve(key string, types []BasicType) (*SpeciesData, error) {
	name := g.CarrierName(key)

	if c, ok := g.rt.classes.Lookup(name); ok {
		if sd := c.species.Load(); sd != nil {
			return sd, nil
		}
		speciesLog.Warningf("salvaging carrier %s", name)
		sd, err := g.link(key, types, c)
		if err != nil {
			return nil, err
		}
		g.salvaged.Add(1)
		g.rt.recordSpecies(key)
		return sd, nil
	}

	blob, err := EncodeClassImage(speciesImage(name, BoundHandleClass.Name, key, types))
	if err != nil {
		return nil, &LinkageError{Msg: "cannot encode carrier " + name, Cause: err}
	}
	c, err := g.rt.classes.DefineClass(name, blob)
	if err != nil {
		return nil, err
	}
	if g.linkHook != nil {
		if err := g.linkHook(name); err != nil {
			return nil, err
		}
	}
	sd, err := g.link(key, types, c)
	if err != nil {
		return nil, err
	}
	g.generated.Add(1)
	g.rt.recordSpecies(key)
	speciesLog.Debugf("generated species %s (%d bytes)", name, len(blob))
	return sd, nil
}

// link builds the record from the carrier's methods and publishes it into
// the carrier's static slot.
func (g *speciesGenerator) link(key string, types []BasicType, c *Class) (*SpeciesData, error) {
	sd := &SpeciesData{
		key:     key,
		types:   types,
		carrier: c,
		rt:      g.rt,
		getters: make([]*NamedFunction, len(types)),
	}
	if m := carrierMethod(c, ConstructorName); m != nil {
		sd.ctor = m.Code
	}
	if sd.ctor == nil {
		return nil, &LinkageError{Msg: "carrier " + c.Name + " has no constructor"}
	}
	mk := carrierMethod(c, "make")
	if mk == nil || !mk.IsStatic() {
		return nil, &LinkageError{Msg: "carrier " + c.Name + " has no factory"}
	}
	sd.factory = mk.Code
	for i, t := range types {
		name := "arg" + speciesFieldName(t, i)
		getter := carrierMethod(c, name)
		if getter == nil {
			return nil, &LinkageError{Msg: "carrier " + c.Name + " has no getter " + name}
		}
		sd.getters[i] = newNamedFunction(name, t, getter.Code)
	}
	c.species.Store(sd)
	return sd, nil
}

func carrierMethod(c *Class, name string) *Method {
	for _, m := range c.Methods() {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// SpeciesStats holds species generator counters.
type SpeciesStats struct {
	Generated uint64
	Salvaged  uint64
	Resolved  int
	Waits     uint64
	Failures  uint64
}

// SpeciesStats returns the runtime's species counters.
func (rt *Runtime) SpeciesStats() SpeciesStats {
	rs := rt.species.cache.Stats()
	return SpeciesStats{
		Generated: rt.species.generated.Load(),
		Salvaged:  rt.species.salvaged.Load(),
		Resolved:  rt.species.cache.Len(),
		Waits:     rs.Waits,
		Failures:  rs.Failures,
	}
}

// ResolvedSpecies returns the keys of every resolved species, sorted.
func (rt *Runtime) ResolvedSpecies() []string {
	var keys []string
	rt.species.cache.Range(func(k string, _ *SpeciesData) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}
