// Package hasher provides the streaming hash accumulator and legacy
// partition-size probes used by the verifier action.
package hasher

import (
	"crypto/sha256"
	"hash"
	"io"
)

// ReadFileBufferSize is the fixed read buffer size used for every partition
// hash pass.
const ReadFileBufferSize = 128 * 1024

// Accumulator wraps a crypto hash with a buffer sized per ReadFileBufferSize
// and tracks how many bytes remain to be consumed for the current
// partition, so callers can implement a read-hash-repeat loop
// without duplicating the "stop at zero, or at a short read" logic.
type Accumulator struct {
	h         hash.Hash
	buf       []byte
	remaining uint64
}

// NewAccumulator creates an Accumulator that will consume exactly size
// bytes.
func NewAccumulator(size uint64) *Accumulator {
	return &Accumulator{
		h:         sha256.New(),
		buf:       make([]byte, ReadFileBufferSize),
		remaining: size,
	}
}

// Remaining reports how many bytes are still expected.
func (a *Accumulator) Remaining() uint64 { return a.remaining }

// Done reports whether the full declared size has been consumed.
func (a *Accumulator) Done() bool { return a.remaining == 0 }

// NextReadSize returns min(buffer size, remaining), the size of the next
// scheduled read per step 5.
func (a *Accumulator) NextReadSize() int {
	if a.remaining < uint64(len(a.buf)) {
		return int(a.remaining)
	}
	return len(a.buf)
}

// Buffer returns the scratch buffer sized for the next read.
func (a *Accumulator) Buffer() []byte {
	return a.buf[:a.NextReadSize()]
}

// Feed accounts for n bytes just read and folds them into the running hash.
// It returns false if n is zero while bytes were still expected — the
// "partition shorter than declared" failure of step 6.
func (a *Accumulator) Feed(b []byte) bool {
	if len(b) == 0 {
		return a.remaining == 0
	}
	a.h.Write(b)
	if uint64(len(b)) > a.remaining {
		a.remaining = 0
	} else {
		a.remaining -= uint64(len(b))
	}
	return true
}

// Sum finalizes the hash.
func (a *Accumulator) Sum() []byte {
	return a.h.Sum(nil)
}

// ErrShortRead is returned by HashReader when r runs dry before size bytes
// have been read — the "partition shorter than declared" case.
var ErrShortRead = io.ErrUnexpectedEOF

// HashReader drains r into a fresh Accumulator sized exactly to size and
// returns the finalized hash. It is the plain synchronous form of the read
// loop the verifier action runs with its own cancellation checks; it is
// called directly only by this package's tests.
func HashReader(r io.Reader, size uint64) ([]byte, error) {
	acc := NewAccumulator(size)
	for !acc.Done() {
		buf := acc.Buffer()
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			acc.Feed(buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if !acc.Done() {
				return nil, ErrShortRead
			}
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return acc.Sum(), nil
}
