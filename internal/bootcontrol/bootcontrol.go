// Package bootcontrol defines the BootControl collaborator: A/B slot
// metadata and block-device resolution. Real bootloader integration is out
// of scope; this package carries the interface plus a filesystem-backed
// implementation good enough for local development and tests, in the idiom
// of hal_mock.go.
package bootcontrol

import "github.com/cloupeer-io/otaupdate/internal/plan"

// BootControl resolves slot/partition names to on-device paths and marks
// slots bootable/unbootable.
type BootControl interface {
	// GetPartitionDevice resolves the block-device path for name on slot.
	// ok is false if the slot or partition is unknown.
	GetPartitionDevice(name string, slot plan.SlotID) (path string, ok bool)

	// MarkSlotUnbootable flags slot so the bootloader won't try it. A
	// failure here is logged, not fatal to the pipeline.
	MarkSlotUnbootable(slot plan.SlotID) error

	// SlotName renders a slot for logging.
	SlotName(slot plan.SlotID) string
}
