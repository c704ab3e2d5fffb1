// Package download implements DownloadAction: the pipeline
// stage that streams an InstallPlan's payload through the applier while
// optionally mirroring it to a P2P share file.
package download

// PayloadState is the PayloadState collaborator of : policy flags
// the platform maintains about whether/how P2P is in play for this update.
type PayloadState interface {
	UsingP2PForSharing() bool
	UsingP2PForDownloading() bool
	P2PURL() string
}

// StaticPayloadState is a fixed-value PayloadState, sufficient for a CLI
// invocation driven by flags rather than a live policy subsystem.
type StaticPayloadState struct {
	Sharing     bool
	Downloading bool
	URL         string
}

// UsingP2PForSharing implements PayloadState.
func (s StaticPayloadState) UsingP2PForSharing() bool { return s.Sharing }

// UsingP2PForDownloading implements PayloadState.
func (s StaticPayloadState) UsingP2PForDownloading() bool { return s.Downloading }

// P2PURL implements PayloadState.
func (s StaticPayloadState) P2PURL() string { return s.URL }
