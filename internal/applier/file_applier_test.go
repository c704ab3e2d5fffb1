package applier

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloupeer-io/otaupdate/internal/errcode"
)

func TestFileApplierWritesBytesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.img")
	a, err := NewFileApplier(path)
	if err != nil {
		t.Fatalf("NewFileApplier: %v", err)
	}

	if _, err := a.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := a.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q want %q", got, "hello world")
	}
}

func TestFileApplierManifestValidityGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.img")
	a, err := NewFileApplier(path)
	if err != nil {
		t.Fatalf("NewFileApplier: %v", err)
	}
	a.ManifestValidAfterBytes = 10
	defer a.Close()

	if a.IsManifestValid() {
		t.Fatal("manifest should not be valid before any bytes are written")
	}
	if _, err := a.Write([]byte("12345")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if a.IsManifestValid() {
		t.Fatal("manifest should not be valid before the configured threshold")
	}
	if _, err := a.Write([]byte("67890")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !a.IsManifestValid() {
		t.Fatal("manifest should be valid once the threshold is reached")
	}
}

func TestFileApplierVerifyPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.img")
	a, err := NewFileApplier(path)
	if err != nil {
		t.Fatalf("NewFileApplier: %v", err)
	}

	data := []byte("the quick brown fox")
	if _, err := a.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sum := sha256.Sum256(data)
	if code := a.VerifyPayload(sum[:], uint64(len(data))); code != errcode.Success {
		t.Fatalf("expected Success, got %v", code)
	}
	if code := a.VerifyPayload(sum[:], uint64(len(data))+1); code != errcode.PayloadSizeMismatchError {
		t.Fatalf("expected PayloadSizeMismatchError, got %v", code)
	}
	badHash := make([]byte, sha256.Size)
	if code := a.VerifyPayload(badHash, uint64(len(data))); code != errcode.PayloadHashMismatchError {
		t.Fatalf("expected PayloadHashMismatchError, got %v", code)
	}
}
