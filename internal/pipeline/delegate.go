// Package pipeline carries the Delegate collaborator DownloadAction reports
// progress to, with a no-op and an MQTT-backed implementation. The concrete
// SourceHasher -> Downloader -> TargetHasher run is assembled in
// cmd/otaupdate-agent/app.
package pipeline

// Delegate receives progress notifications from DownloadAction.
type Delegate interface {
	// SetDownloadStatus reports whether a download is currently in flight.
	SetDownloadStatus(active bool)

	// BytesReceived reports cumulative progress.
	BytesReceived(current, total uint64)
}

// NopDelegate discards every notification.
type NopDelegate struct{}

// SetDownloadStatus implements Delegate.
func (NopDelegate) SetDownloadStatus(active bool) {}

// BytesReceived implements Delegate.
func (NopDelegate) BytesReceived(current, total uint64) {}
