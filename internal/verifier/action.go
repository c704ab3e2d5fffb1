// Package verifier implements FilesystemVerifierAction: hashing
// each partition's block device, either to populate source_hash ahead of a
// delta application or to confirm target_hash after one.
package verifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cloupeer-io/otaupdate/internal/action"
	"github.com/cloupeer-io/otaupdate/internal/bootcontrol"
	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/internal/hasher"
	"github.com/cloupeer-io/otaupdate/internal/plan"
	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/metrics"
)

// Mode selects which hash operation the action performs.
type Mode int

const (
	// ComputeSourceHash hashes the source slot and populates
	// partition.SourceHash.
	ComputeSourceHash Mode = iota
	// VerifyTargetHash hashes the target slot and compares against
	// partition.TargetHash.
	VerifyTargetHash
)

func (m Mode) String() string {
	if m == VerifyTargetHash {
		return "VerifyTargetHash"
	}
	return "ComputeSourceHash"
}

// legacyPartitionName* name the two synthesized entries used when a delta
// manifest predates explicit partition lists.
const (
	legacyPartitionNameRoot   = "root"
	legacyPartitionNameKernel = "kernel"
)

// FilesystemVerifierAction is a pipeline stage implementing Action,
// action.HasInput and action.HasOutput: it consumes an *plan.InstallPlan,
// hashes every partition in order, and passes the (possibly mutated) plan
// downstream.
type FilesystemVerifierAction struct {
	mode Mode
	boot bootcontrol.BootControl

	completer action.Completer
	plan      *plan.InstallPlan

	cancelled atomic.Bool
}

// NewFilesystemVerifierAction returns a verifier action running in mode,
// resolving partition devices through boot.
func NewFilesystemVerifierAction(mode Mode, boot bootcontrol.BootControl) *FilesystemVerifierAction {
	return &FilesystemVerifierAction{mode: mode, boot: boot}
}

// Name implements action.Action.
func (a *FilesystemVerifierAction) Name() string {
	return "FilesystemVerifierAction[" + a.mode.String() + "]"
}

// SetInput implements action.HasInput.
func (a *FilesystemVerifierAction) SetInput(v any) {
	p, ok := v.(*plan.InstallPlan)
	if !ok {
		return
	}
	a.plan = p
}

// HasInputObject implements action.HasInput.
func (a *FilesystemVerifierAction) HasInputObject() bool {
	return a.plan != nil
}

// Output implements action.HasOutput.
func (a *FilesystemVerifierAction) Output() any {
	return a.plan
}

// SetCompleter wires the processor's completion callback.
func (a *FilesystemVerifierAction) SetCompleter(c action.Completer) {
	a.completer = c
}

// TerminateProcessing implements action.Action. This only sets a
// cancellation flag; the in-flight read loop notices it on its next
// iteration and completes with Error rather than being aborted out from
// under it.
func (a *FilesystemVerifierAction) TerminateProcessing() {
	a.cancelled.Store(true)
}

// Perform implements action.Action. The read loop does blocking file I/O, so
// it runs on its own goroutine and reports back through the completer
// exactly once, matching the rest of the pipeline's async-callback shape.
func (a *FilesystemVerifierAction) Perform(ctx context.Context) {
	go a.run(ctx)
}

func (a *FilesystemVerifierAction) run(ctx context.Context) {
	guard := action.NewScopedCompleter(a.completer, errcode.FilesystemVerifierError)
	defer guard.Fire()

	if a.plan == nil {
		log.Error(fmt.Errorf("no install plan"), "verifier has no input")
		return
	}

	partitions := a.plan.Partitions
	if a.mode == ComputeSourceHash && !a.plan.IsFullUpdate && len(partitions) == 0 {
		synth, err := a.synthesizeLegacyPartitions()
		if err != nil {
			log.Error(err, "legacy partition synthesis failed")
			return
		}
		partitions = synth
		a.plan.Partitions = synth
	}

	for i := range partitions {
		part := &partitions[i]
		if a.cancelled.Load() {
			guard.SetCode(errcode.Error)
			return
		}

		if err := a.hashOne(part); err != nil {
			switch err {
			case errMismatch:
				guard.SetCode(errcode.NewRootfsVerificationError)
			case errCancelled:
				guard.SetCode(errcode.Error)
			default:
				guard.SetCode(errcode.FilesystemVerifierError)
			}
			log.Error(err, "partition hash failed", "partition", part.Name, "mode", a.mode.String())
			return
		}
	}

	guard.SetCode(errcode.Success)
}

var errMismatch = fmt.Errorf("target hash mismatch")

// errCancelled is returned by hashCancellable when TerminateProcessing fired
// mid-read; it short-circuits cleanup with Error per §4.3/§8 scenario 6,
// distinct from an actual I/O failure (FilesystemVerifierError).
var errCancelled = fmt.Errorf("verification cancelled")

func (a *FilesystemVerifierAction) hashOne(part *plan.Partition) error {
	slot := a.slotFor()

	switch a.mode {
	case ComputeSourceHash:
		if part.SourceSize == 0 || slot == plan.InvalidSlot {
			part.SourceHash = nil
			return nil
		}
	case VerifyTargetHash:
		if part.TargetSize == 0 {
			return nil
		}
	}

	path, size, ok := a.resolve(part, slot)
	if !ok {
		if a.mode == ComputeSourceHash {
			return fmt.Errorf("resolve source device for %s: not found", part.Name)
		}
		return fmt.Errorf("resolve target device for %s: not found", part.Name)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	sum, err := a.hashCancellable(f, size)
	metrics.HashDuration.WithLabelValues(a.mode.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	switch a.mode {
	case ComputeSourceHash:
		part.SourceHash = sum
	case VerifyTargetHash:
		if !bytes.Equal(sum, part.TargetHash) {
			return errMismatch
		}
	}
	return nil
}

// hashCancellable drains r exactly size bytes through a hasher.Accumulator,
// checking the cancellation flag between reads so TerminateProcessing can
// cut the loop short without aborting the underlying read in flight.
func (a *FilesystemVerifierAction) hashCancellable(r *os.File, size uint64) ([]byte, error) {
	acc := hasher.NewAccumulator(size)
	for !acc.Done() {
		if a.cancelled.Load() {
			return nil, errCancelled
		}
		buf := acc.Buffer()
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			acc.Feed(buf[:n])
		}
		switch {
		case err == nil:
			continue
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			if !acc.Done() {
				return nil, hasher.ErrShortRead
			}
		default:
			return nil, err
		}
	}
	return acc.Sum(), nil
}

func (a *FilesystemVerifierAction) slotFor() plan.SlotID {
	if a.mode == ComputeSourceHash {
		return a.plan.SourceSlot
	}
	return a.plan.TargetSlot
}

// resolve returns the device path and declared size to hash for part on
// slot.
func (a *FilesystemVerifierAction) resolve(part *plan.Partition, slot plan.SlotID) (string, uint64, bool) {
	path, ok := a.boot.GetPartitionDevice(part.Name, slot)
	if !ok {
		return "", 0, false
	}
	if a.mode == ComputeSourceHash {
		return path, part.SourceSize, true
	}
	return path, part.TargetSize, true
}

// synthesizeLegacyPartitions builds the "root"/"kernel" entries for
// pre-partition-list delta manifests (, "Legacy partition
// synthesis").
func (a *FilesystemVerifierAction) synthesizeLegacyPartitions() ([]plan.Partition, error) {
	slot := a.plan.SourceSlot

	rootPath, ok := a.boot.GetPartitionDevice(legacyPartitionNameRoot, slot)
	if !ok {
		return nil, fmt.Errorf("resolve legacy root device")
	}
	rootSize, err := hasher.Ext2FilesystemSize(rootPath)
	if err != nil {
		return nil, fmt.Errorf("probe legacy root size: %w", err)
	}

	kernelPath, ok := a.boot.GetPartitionDevice(legacyPartitionNameKernel, slot)
	if !ok {
		return nil, fmt.Errorf("resolve legacy kernel device")
	}
	kernelSize, err := hasher.RawBlockDeviceSize(kernelPath)
	if err != nil {
		return nil, fmt.Errorf("probe legacy kernel size: %w", err)
	}

	return []plan.Partition{
		{Name: legacyPartitionNameRoot, SourceSize: rootSize},
		{Name: legacyPartitionNameKernel, SourceSize: kernelSize},
	}, nil
}
