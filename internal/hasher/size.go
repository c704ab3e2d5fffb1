package hasher

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ext2SuperblockOffset is the fixed byte offset of the ext2/3/4 superblock on
// any block device, regardless of block size.
const ext2SuperblockOffset = 1024

// ext2 superblock field offsets, relative to the superblock itself. Only
// the two fields the legacy synthesis path needs are read.
const (
	offBlocksCount  = 4 // __le32 s_blocks_count
	offLogBlockSize = 24 // __le32 s_log_block_size (log2(block_size) - 10)
)

const ext2Magic = 0xEF53

// Ext2FilesystemSize opens the block device at path and returns
// block_count * block_size as reported by its ext2/3/4 superblock — the
// legacy "root" partition size synthesis.
func Ext2FilesystemSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sb := make([]byte, 1024)
	if _, err := f.ReadAt(sb, ext2SuperblockOffset); err != nil {
		return 0, fmt.Errorf("read superblock of %s: %w", path, err)
	}

	magic := binary.LittleEndian.Uint16(sb[56:58])
	if magic != ext2Magic {
		return 0, fmt.Errorf("%s: not an ext2/3/4 filesystem (bad superblock magic)", path)
	}

	blocksCount := binary.LittleEndian.Uint32(sb[offBlocksCount:])
	logBlockSize := binary.LittleEndian.Uint32(sb[offLogBlockSize:])
	blockSize := uint64(1024) << logBlockSize

	return uint64(blocksCount) * blockSize, nil
}

// RawBlockDeviceSize returns the raw byte length of the device or file at
// path — the legacy "kernel" partition size synthesis. For a regular file
// (used by the mock boot-control in dev/test) this is just the file size;
// for a real block device, seeking to the end reports its size since block
// devices have no meaningful stat().Size().
func RawBlockDeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek %s: %w", path, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("%s: negative size", path)
	}
	return uint64(size), nil
}
