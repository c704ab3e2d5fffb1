package hasher

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeFakeExt2(t *testing.T, path string, blocksCount, logBlockSize uint32) {
	t.Helper()

	buf := make([]byte, ext2SuperblockOffset+1024)
	sb := buf[ext2SuperblockOffset:]
	binary.LittleEndian.PutUint32(sb[offBlocksCount:], blocksCount)
	binary.LittleEndian.PutUint32(sb[offLogBlockSize:], logBlockSize)
	binary.LittleEndian.PutUint16(sb[56:58], ext2Magic)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fake superblock: %v", err)
	}
}

func TestExt2FilesystemSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.img")
	writeFakeExt2(t, path, 100, 2) // block size = 1024 << 2 = 4096

	got, err := Ext2FilesystemSize(path)
	if err != nil {
		t.Fatalf("Ext2FilesystemSize: %v", err)
	}
	if want := uint64(100 * 4096); got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestExt2FilesystemSizeBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notfs.img")
	buf := make([]byte, ext2SuperblockOffset+1024)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Ext2FilesystemSize(path); err == nil {
		t.Fatal("expected error for bad superblock magic")
	}
}

func TestRawBlockDeviceSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.img")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := RawBlockDeviceSize(path)
	if err != nil {
		t.Fatalf("RawBlockDeviceSize: %v", err)
	}
	if got != 4096 {
		t.Fatalf("got %d want 4096", got)
	}
}
