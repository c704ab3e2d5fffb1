package verifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloupeer-io/otaupdate/internal/bootcontrol"
	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/internal/plan"
)

func writePartitionFile(t *testing.T, boot *bootcontrol.MockBootControl, slot plan.SlotID, name string, data []byte) {
	t.Helper()
	path, ok := boot.GetPartitionDevice(name, slot)
	if !ok {
		t.Fatalf("resolve device for %s", name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func runAndWait(t *testing.T, a *FilesystemVerifierAction, p *plan.InstallPlan) errcode.ErrorCode {
	t.Helper()
	done := make(chan errcode.ErrorCode, 1)
	a.SetInput(p)
	a.SetCompleter(completerFunc(func(code errcode.ErrorCode) { done <- code }))
	a.Perform(context.Background())

	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("verifier did not complete in time")
		return errcode.Error
	}
}

type completerFunc func(errcode.ErrorCode)

func (f completerFunc) Complete(code errcode.ErrorCode) { f(code) }

func TestComputeSourceHashPopulatesHash(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	data := bytes.Repeat([]byte{0x42}, 5000)
	writePartitionFile(t, boot, 0, "system", data)
	want := sha256.Sum256(data)

	p := &plan.InstallPlan{
		SourceSlot: 0,
		Partitions: []plan.Partition{{Name: "system", SourceSize: uint64(len(data))}},
	}

	a := NewFilesystemVerifierAction(ComputeSourceHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.Success {
		t.Fatalf("expected Success, got %v", code)
	}
	if !bytes.Equal(p.Partitions[0].SourceHash, want[:]) {
		t.Fatalf("source hash mismatch: got %x want %x", p.Partitions[0].SourceHash, want)
	}
}

func TestVerifyTargetHashMismatch(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	data := bytes.Repeat([]byte{0x11}, 2048)
	writePartitionFile(t, boot, 1, "system", data)

	p := &plan.InstallPlan{
		TargetSlot: 1,
		Partitions: []plan.Partition{{
			Name:       "system",
			TargetSize: uint64(len(data)),
			TargetHash: bytes.Repeat([]byte{0xFF}, sha256.Size),
		}},
	}

	a := NewFilesystemVerifierAction(VerifyTargetHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.NewRootfsVerificationError {
		t.Fatalf("expected NewRootfsVerificationError, got %v", code)
	}
}

func TestVerifyTargetHashSuccess(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	data := bytes.Repeat([]byte{0x77}, 9001)
	writePartitionFile(t, boot, 1, "system", data)
	want := sha256.Sum256(data)

	p := &plan.InstallPlan{
		TargetSlot: 1,
		Partitions: []plan.Partition{{
			Name:       "system",
			TargetSize: uint64(len(data)),
			TargetHash: want[:],
		}},
	}

	a := NewFilesystemVerifierAction(VerifyTargetHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.Success {
		t.Fatalf("expected Success, got %v", code)
	}
}

func TestZeroSizePartitionSkipsOpen(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	p := &plan.InstallPlan{
		SourceSlot: 0,
		Partitions: []plan.Partition{{Name: "empty", SourceSize: 0}},
	}

	a := NewFilesystemVerifierAction(ComputeSourceHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.Success {
		t.Fatalf("expected Success for zero-size partition, got %v", code)
	}
	if len(p.Partitions[0].SourceHash) != 0 {
		t.Fatalf("expected empty source hash for zero-size partition, got %x", p.Partitions[0].SourceHash)
	}
}

func TestPartitionShorterThanDeclaredFails(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	writePartitionFile(t, boot, 0, "system", []byte("short"))

	p := &plan.InstallPlan{
		SourceSlot: 0,
		Partitions: []plan.Partition{{Name: "system", SourceSize: 10_000}},
	}

	a := NewFilesystemVerifierAction(ComputeSourceHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.FilesystemVerifierError {
		t.Fatalf("expected FilesystemVerifierError, got %v", code)
	}
}

func TestLegacySynthesisForDeltaWithoutPartitions(t *testing.T) {
	dir := t.TempDir()
	boot := bootcontrol.NewMockBootControl(dir)

	root := bytes.Repeat([]byte{0x01}, 1024+1024) // superblock region + a bit
	// Build a real-ish ext2 superblock so the synthesis probe succeeds.
	rootPath, _ := boot.GetPartitionDevice("root", 0)
	if err := os.MkdirAll(filepath.Dir(rootPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	buf := make([]byte, 10*1024) // the whole filesystem: 10 blocks of 1024 bytes
	copy(buf, root)
	// magic at superblock offset 1024+56, blocks_count at +4, log_block_size at +24
	buf[1024+56] = 0x53
	buf[1024+57] = 0xEF
	copy(buf[1024+4:], []byte{10, 0, 0, 0}) // blocks_count = 10 (little endian)
	copy(buf[1024+24:], []byte{0, 0, 0, 0}) // log_block_size = 0 -> block size 1024
	if err := os.WriteFile(rootPath, buf, 0o644); err != nil {
		t.Fatalf("write root: %v", err)
	}

	kernelPath, _ := boot.GetPartitionDevice("kernel", 0)
	if err := os.WriteFile(kernelPath, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write kernel: %v", err)
	}

	p := &plan.InstallPlan{
		SourceSlot:   0,
		IsFullUpdate: false,
		Partitions:   nil,
	}

	a := NewFilesystemVerifierAction(ComputeSourceHash, boot)
	code := runAndWait(t, a, p)
	if code != errcode.Success {
		t.Fatalf("expected Success, got %v", code)
	}
}
