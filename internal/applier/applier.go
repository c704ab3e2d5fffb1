// Package applier defines the PayloadWriter collaborator: the thing
// DownloadAction streams payload bytes into, and later asks to verify what
// it wrote. Payload parsing/application itself is out of scope; this
// package only carries the interface boundary and a file-backed
// implementation, grounded on hal_mock.go's InstallFirmware path.
package applier

import (
	"io"

	"github.com/cloupeer-io/otaupdate/internal/errcode"
)

// PayloadWriter is handed successive byte chunks by DownloadAction as they
// arrive, in strict offset order with no gaps. Write deliberately returns a
// plain error rather than errcode.ErrorCode: it embeds io.Writer so any
// stdlib-shaped sink (a file, a pipe, an io.MultiWriter) can implement it
// without pulling in the pipeline's error vocabulary, so a Write failure is
// always latched as the generic errcode.Error by the caller rather than
// threaded through verbatim.
type PayloadWriter interface {
	io.Writer

	// Close finalizes the write. After Close, IsManifestValid and
	// VerifyPayload may be called.
	Close() error

	// IsManifestValid reports whether enough of the payload has been
	// written and authenticated to make the P2P-shared mirror visible to
	// other peers.
	IsManifestValid() bool

	// VerifyPayload is called once, after the transfer completes
	// successfully, to confirm the written bytes match expectedHash and
	// expectedSize.
	VerifyPayload(expectedHash []byte, expectedSize uint64) errcode.ErrorCode
}
