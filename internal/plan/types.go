// Package plan holds the InstallPlan data model threaded through the
// download-and-verify pipeline.
package plan

// SlotID identifies one of the two A/B boot slots a partition can live on.
type SlotID int

// InvalidSlot is the distinguished value meaning "no such slot" — used for
// the source slot of a full update, or any slot that hasn't been resolved yet.
const InvalidSlot SlotID = -1

// Valid reports whether s names a real, resolvable slot.
func (s SlotID) Valid() bool { return s != InvalidSlot }

// Partition is a pair of (source, target) views of one named on-device
// filesystem.
type Partition struct {
	// Name identifies the partition, e.g. "root", "kernel".
	Name string

	// SourcePath/TargetPath are resolved block-device paths. Either may be
	// empty if the corresponding slot is invalid.
	SourcePath string
	TargetPath string

	// SourceSize/TargetSize are byte counts, always >= 0.
	SourceSize uint64
	TargetSize uint64

	// SourceHash/TargetHash are empty until populated by SourceHasher /
	// supplied by the manifest respectively.
	SourceHash []byte
	TargetHash []byte

	// RunPostinstall controls whether a postinstall script runs for this
	// partition after application. The pipeline in this repo does not run
	// postinstall scripts itself (out of scope); it only threads the flag
	// through for a downstream stage to consume.
	RunPostinstall bool
}

// InstallPlan is the per-update ticket threaded through every stage of the
// pipeline. It is created by an out-of-scope preparation stage,
// mutated in place by SourceHasher, and otherwise read-only.
type InstallPlan struct {
	// IsResume distinguishes a fresh transfer from one resuming across reboot.
	IsResume bool

	// IsFullUpdate is true for a full image, false for a delta against the
	// current slot.
	IsFullUpdate bool

	// DownloadURL may be either a remote URL or a localhost P2P URL.
	DownloadURL string

	// PayloadSize/PayloadHash authenticate the streamed payload.
	PayloadSize uint64
	PayloadHash []byte

	// MetadataSize/MetadataSignature/PublicKeyRSA authenticate the manifest
	// itself, ahead of streaming the full payload.
	MetadataSize      uint64
	MetadataSignature []byte
	PublicKeyRSA      []byte

	// SourceSlot/TargetSlot name the A/B slots this update reads from and
	// writes to.
	SourceSlot SlotID
	TargetSlot SlotID

	HashChecksMandatory bool
	PowerwashRequired   bool

	// Partitions is the ordered sequence of partitions this update touches.
	Partitions []Partition
}

// PartitionByName returns a pointer to the named partition, or nil.
func (p *InstallPlan) PartitionByName(name string) *Partition {
	for i := range p.Partitions {
		if p.Partitions[i].Name == name {
			return &p.Partitions[i]
		}
	}
	return nil
}

// Clone returns a deep-enough copy of the plan for tests that mutate one
// copy without disturbing a shared fixture. Byte slices are copied; nothing
// else in the plan is ever mutated after SourceHasher runs.
func (p *InstallPlan) Clone() *InstallPlan {
	out := *p
	out.Partitions = make([]Partition, len(p.Partitions))
	copy(out.Partitions, p.Partitions)
	for i := range out.Partitions {
		out.Partitions[i].SourceHash = append([]byte(nil), p.Partitions[i].SourceHash...)
		out.Partitions[i].TargetHash = append([]byte(nil), p.Partitions[i].TargetHash...)
	}
	out.PayloadHash = append([]byte(nil), p.PayloadHash...)
	out.MetadataSignature = append([]byte(nil), p.MetadataSignature...)
	out.PublicKeyRSA = append([]byte(nil), p.PublicKeyRSA...)
	return &out
}
