package hasher

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"
)

func TestHashReaderMatchesDirectSum(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 3*ReadFileBufferSize+17)
	want := sha256.Sum256(data)

	got, err := HashReader(bytes.NewReader(data), uint64(len(data)))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if !bytes.Equal(got, want[:]) {
		t.Fatalf("hash mismatch: got %x want %x", got, want)
	}
}

func TestHashReaderShortRead(t *testing.T) {
	r := strings.NewReader("short")
	if _, err := HashReader(r, 1000); err != ErrShortRead {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}

func TestHashReaderZeroSize(t *testing.T) {
	got, err := HashReader(strings.NewReader(""), 0)
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	want := sha256.Sum256(nil)
	if !bytes.Equal(got, want[:]) {
		t.Fatalf("hash mismatch for empty input: got %x want %x", got, want)
	}
}

func TestAccumulatorFeedTracksRemaining(t *testing.T) {
	acc := NewAccumulator(10)
	if acc.Done() {
		t.Fatal("accumulator with remaining bytes reports done")
	}
	if !acc.Feed(make([]byte, 10)) {
		t.Fatal("Feed of exact remaining size should succeed")
	}
	if !acc.Done() {
		t.Fatal("accumulator should be done after consuming declared size")
	}
}

func TestAccumulatorFeedShortRead(t *testing.T) {
	acc := NewAccumulator(10)
	if acc.Feed(nil) {
		t.Fatal("zero-length feed with remaining > 0 should report failure")
	}
}
