package storage

import (
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("value = %q, want %q", got, "v")
	}
	has, err := db.Has([]byte("k"))
	if err != nil || !has {
		t.Fatalf("has = %v, %v, want true", has, err)
	}
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
	has, err := db.Has([]byte("missing"))
	if err != nil || has {
		t.Fatalf("has = %v, %v, want false", has, err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("stored value aliased caller's buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "original" {
		t.Fatalf("returned value aliases the store: %q", again)
	}
}
