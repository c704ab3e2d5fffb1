package p2p

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateWritesHiddenFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFilesystemManager(dir)
	if err != nil {
		t.Fatalf("NewFilesystemManager: %v", err)
	}

	id := m.FileID([]byte("hash"), 1024)
	f, err := m.Allocate(id, 1024)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := f.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "."+id)); err != nil {
		t.Fatalf("expected hidden file to exist: %v", err)
	}
	if m.Visible(id) {
		t.Fatal("file should not be visible before promotion")
	}
}

func TestMakeVisibleIsIdempotentAndMonotonic(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFilesystemManager(dir)
	if err != nil {
		t.Fatalf("NewFilesystemManager: %v", err)
	}

	id := m.FileID([]byte("hash"), 1024)
	f, err := m.Allocate(id, 1024)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	f.Close()

	if err := m.MakeVisible(id); err != nil {
		t.Fatalf("MakeVisible: %v", err)
	}
	if !m.Visible(id) {
		t.Fatal("expected file to be visible after promotion")
	}
	if err := m.MakeVisible(id); err != nil {
		t.Fatalf("second MakeVisible should be a no-op, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "."+id)); !os.IsNotExist(err) {
		t.Fatal("hidden path should no longer exist after promotion")
	}
	if _, err := os.Stat(filepath.Join(dir, id)); err != nil {
		t.Fatalf("expected visible path to exist: %v", err)
	}
}

func TestDeleteRemovesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFilesystemManager(dir)
	if err != nil {
		t.Fatalf("NewFilesystemManager: %v", err)
	}

	id := m.FileID([]byte("hash"), 1024)
	f, err := m.Allocate(id, 1024)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	f.Close()

	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Stat(id); ok {
		t.Fatal("expected share file to be gone after Delete")
	}
	if _, err := os.Stat(filepath.Join(dir, id+".meta")); !os.IsNotExist(err) {
		t.Fatal("expected sidecar metadata to be removed")
	}
}
