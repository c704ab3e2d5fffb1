// Package fetcher implements the HttpFetcher collaborator: the thing
// DownloadAction drives to pull payload bytes from either a plain HTTP(S)
// URL or an S3-compatible bucket.
package fetcher

import "context"

// Delegate receives the fetcher's transfer callbacks. DownloadAction
// implements this.
type Delegate interface {
	// ReceivedBytes is called once per chunk, in order, covering the whole
	// transfer with no gaps.
	ReceivedBytes(data []byte)

	// SeekToOffset is called at most once, before the first ReceivedBytes,
	// when the fetcher determines the transfer is resuming partway through
	// (a prior seek request was honored by the remote).
	SeekToOffset(offset int64)

	// TransferComplete fires exactly once when the transfer reaches its
	// natural end; TransferTerminated fires instead if TerminateTransfer
	// was called. Never both.
	TransferComplete(successful bool)
	TransferTerminated()
}

// HttpFetcher is the fetcher contract DownloadAction drives.
// Despite the name, implementations may fetch over any transport — see
// S3Fetcher.
type HttpFetcher interface {
	SetDelegate(d Delegate)
	SetLowSpeedLimit(bps, seconds int)
	SetMaxRetryCount(n int)
	SetConnectTimeout(seconds int)

	// BeginTransfer starts streaming url from offset (0 for a fresh
	// transfer). Delegate callbacks are delivered asynchronously; this call
	// itself returns as soon as the transfer has been scheduled.
	BeginTransfer(ctx context.Context, url string, offset int64) error

	// TerminateTransfer requests cancellation; Delegate.TransferTerminated
	// follows.
	TerminateTransfer()
}
