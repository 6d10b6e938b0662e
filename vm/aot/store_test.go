package aot

import (
	"errors"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	defer s.Close()

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.Put("b", []byte("second")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("a", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("a", []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "replaced" {
		t.Errorf("Get(a) = %q", data)
	}
	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List = %v", names)
	}
}

func TestFileStore(t *testing.T) {
	s, err := OpenStore("file", filepath.Join(t.TempDir(), "archives"))
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestFileStoreRejectsPaths(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := s.Put(name, nil); err == nil {
			t.Errorf("Put(%q) should fail", name)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenStore("sqlite", filepath.Join(t.TempDir(), "archives.db"))
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestOpenStoreUnknownKind(t *testing.T) {
	if _, err := OpenStore("tape", t.TempDir()); err == nil {
		t.Error("expected an error for an unknown store kind")
	}
}

func TestStoreArchiveRoundTrip(t *testing.T) {
	a := emit(t, 0, sampleEvents(t))
	data, err := Encode(a, true)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Put(a.BuildID, data); err != nil {
		t.Fatal(err)
	}
	stored, err := s.Get(a.BuildID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(stored)
	if err != nil {
		t.Fatal(err)
	}
	if got.BuildID != a.BuildID {
		t.Errorf("BuildID = %q", got.BuildID)
	}
}
