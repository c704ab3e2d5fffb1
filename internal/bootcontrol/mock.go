package bootcontrol

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cloupeer-io/otaupdate/internal/plan"
	"github.com/cloupeer-io/otaupdate/pkg/log"
)

// slotNames mirrors the two-slot A/B convention throughout the data model;
// anything beyond slot 1 does not resolve here (SlotID.Valid itself only
// rejects InvalidSlot).
var slotNames = []string{"a", "b"}

// MockBootControl resolves partitions to plain files under a root directory,
// in the spirit of hal_mock.go device stand-in: good enough to
// drive the pipeline end to end in tests and local development without a
// real bootloader.
type MockBootControl struct {
	root string

	mu          sync.Mutex
	unbootable  map[plan.SlotID]bool
}

// NewMockBootControl returns a BootControl rooted at dir. Partition device
// paths are dir/<slot>/<name>.
func NewMockBootControl(dir string) *MockBootControl {
	return &MockBootControl{
		root:       dir,
		unbootable: make(map[plan.SlotID]bool),
	}
}

// GetPartitionDevice implements BootControl.
func (m *MockBootControl) GetPartitionDevice(name string, slot plan.SlotID) (string, bool) {
	if !slot.Valid() || int(slot) >= len(slotNames) {
		return "", false
	}
	return filepath.Join(m.root, slotNames[slot], name), true
}

// MarkSlotUnbootable implements BootControl. The mock fails only for
// InvalidSlot; callers treat a failure as non-fatal.
func (m *MockBootControl) MarkSlotUnbootable(slot plan.SlotID) error {
	if !slot.Valid() {
		return fmt.Errorf("mark slot unbootable: invalid slot %d", slot)
	}
	m.mu.Lock()
	m.unbootable[slot] = true
	m.mu.Unlock()
	log.Info("slot marked unbootable", "slot", m.SlotName(slot))
	return nil
}

// IsUnbootable reports whether MarkSlotUnbootable was called for slot; a
// test helper only, not part of the BootControl interface.
func (m *MockBootControl) IsUnbootable(slot plan.SlotID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unbootable[slot]
}

// SlotName implements BootControl.
func (m *MockBootControl) SlotName(slot plan.SlotID) string {
	if !slot.Valid() || int(slot) >= len(slotNames) {
		return "invalid"
	}
	return slotNames[slot]
}
