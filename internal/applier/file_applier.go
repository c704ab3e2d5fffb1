package applier

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"
	"os"
	"sync"

	"github.com/cloupeer-io/otaupdate/internal/errcode"
)

// FileApplier writes the payload stream directly to a target path on disk,
// the same shortcut hal_mock.go takes for InstallFirmware
// instead of talking to a real flashing/DeltaPerformer driver.
type FileApplier struct {
	f *os.File
	h hash.Hash

	mu            sync.Mutex
	bytesWritten  uint64
	manifestValid bool

	// ManifestValidAfterBytes controls when IsManifestValid flips to true;
	// defaults to 0 (valid as soon as any byte has landed), but tests can
	// raise it to exercise the P2P "not yet visible" window.
	ManifestValidAfterBytes uint64
}

// NewFileApplier opens path for writing and returns a ready-to-use
// FileApplier.
func NewFileApplier(path string) (*FileApplier, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open target %s: %w", path, err)
	}
	return &FileApplier{f: f, h: sha256.New()}, nil
}

// Write implements PayloadWriter.
func (a *FileApplier) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if n > 0 {
		a.h.Write(p[:n])
		a.recordWrite(n)
	}
	return n, err
}

func (a *FileApplier) recordWrite(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytesWritten += uint64(n)
	if a.bytesWritten >= a.ManifestValidAfterBytes {
		a.manifestValid = true
	}
}

// Close implements PayloadWriter.
func (a *FileApplier) Close() error {
	return a.f.Close()
}

// IsManifestValid implements PayloadWriter.
func (a *FileApplier) IsManifestValid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.manifestValid
}

// VerifyPayload implements PayloadWriter, hashing everything written so far
// and comparing it against the manifest's declared hash and size.
func (a *FileApplier) VerifyPayload(expectedHash []byte, expectedSize uint64) errcode.ErrorCode {
	a.mu.Lock()
	written := a.bytesWritten
	a.mu.Unlock()

	if written != expectedSize {
		return errcode.PayloadSizeMismatchError
	}
	if !bytes.Equal(a.h.Sum(nil), expectedHash) {
		return errcode.PayloadHashMismatchError
	}
	return errcode.Success
}
