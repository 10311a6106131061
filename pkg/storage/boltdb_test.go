package storage

import (
	"bytes"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(nil, true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Put(BucketGlobal, []byte("k"), []byte("v"), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx, err := s.Begin(nil, false)
	if err != nil {
		t.Fatalf("Begin read: %v", err)
	}
	defer rtx.Abort()
	got, err := rtx.Get(BucketGlobal, []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	tx, _ := s.Begin(nil, false)
	defer tx.Abort()

	_, err := tx.Get(BucketBlock, []byte("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPutNoOverwriteRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	tx, _ := s.Begin(nil, true)
	defer tx.Abort()

	if err := tx.Put(BucketBlock, []byte("k"), []byte("v1"), true); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := tx.Put(BucketBlock, []byte("k"), []byte("v2"), true); err == nil {
		t.Fatal("expected error on duplicate no-overwrite put")
	}
}

func TestNestedTransactionSharesParentWrites(t *testing.T) {
	s := openTestStore(t)
	parent, err := s.Begin(nil, true)
	if err != nil {
		t.Fatalf("Begin parent: %v", err)
	}
	defer parent.Abort()

	if err := parent.Put(BucketArtifact, []byte("a"), []byte("1"), false); err != nil {
		t.Fatalf("Put: %v", err)
	}

	child, err := s.Begin(parent, false)
	if err != nil {
		t.Fatalf("Begin nested: %v", err)
	}
	got, err := child.Get(BucketArtifact, []byte("a"))
	if err != nil {
		t.Fatalf("nested Get: %v", err)
	}
	if !bytes.Equal(got, []byte("1")) {
		t.Errorf("nested Get() = %q, want %q", got, "1")
	}

	// Commit/Abort on the borrowed child must not finalize the parent's
	// underlying transaction.
	child.Commit()
	if err := parent.Commit(); err != nil {
		t.Fatalf("parent Commit after nested use: %v", err)
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	tx, _ := s.Begin(nil, true)
	if err := tx.Put(BucketGlobal, []byte("k"), []byte("v"), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	tx.Abort()

	rtx, _ := s.Begin(nil, false)
	defer rtx.Abort()
	if _, err := rtx.Get(BucketGlobal, []byte("k")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected aborted write to be discarded, got err=%v", err)
	}
}
