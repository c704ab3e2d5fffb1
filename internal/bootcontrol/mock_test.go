package bootcontrol

import (
	"testing"

	"github.com/cloupeer-io/otaupdate/internal/plan"
)

func TestGetPartitionDeviceSlots(t *testing.T) {
	boot := NewMockBootControl(t.TempDir())

	pathA, ok := boot.GetPartitionDevice("system", 0)
	if !ok {
		t.Fatal("expected slot 0 to resolve")
	}
	pathB, ok := boot.GetPartitionDevice("system", 1)
	if !ok {
		t.Fatal("expected slot 1 to resolve")
	}
	if pathA == pathB {
		t.Fatalf("expected distinct paths per slot, got %s for both", pathA)
	}
}

func TestGetPartitionDeviceInvalidSlot(t *testing.T) {
	boot := NewMockBootControl(t.TempDir())
	if _, ok := boot.GetPartitionDevice("system", plan.InvalidSlot); ok {
		t.Fatal("expected invalid slot to fail resolution")
	}
}

func TestMarkSlotUnbootable(t *testing.T) {
	boot := NewMockBootControl(t.TempDir())
	if boot.IsUnbootable(0) {
		t.Fatal("slot should start bootable")
	}
	if err := boot.MarkSlotUnbootable(0); err != nil {
		t.Fatalf("MarkSlotUnbootable: %v", err)
	}
	if !boot.IsUnbootable(0) {
		t.Fatal("expected slot 0 to be marked unbootable")
	}
	if boot.IsUnbootable(1) {
		t.Fatal("marking slot 0 must not affect slot 1")
	}
}

func TestSlotName(t *testing.T) {
	boot := NewMockBootControl(t.TempDir())
	if got := boot.SlotName(0); got != "a" {
		t.Fatalf("got %q want %q", got, "a")
	}
	if got := boot.SlotName(1); got != "b" {
		t.Fatalf("got %q want %q", got, "b")
	}
	if got := boot.SlotName(plan.InvalidSlot); got != "invalid" {
		t.Fatalf("got %q want %q", got, "invalid")
	}
}
