package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cloupeer-io/otaupdate/internal/action"
	"github.com/cloupeer-io/otaupdate/internal/applier"
	"github.com/cloupeer-io/otaupdate/internal/bootcontrol"
	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/internal/fetcher"
	"github.com/cloupeer-io/otaupdate/internal/p2p"
	"github.com/cloupeer-io/otaupdate/internal/pipeline"
	"github.com/cloupeer-io/otaupdate/internal/plan"
	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/metrics"
	"github.com/cloupeer-io/otaupdate/pkg/options"
)

// Action is DownloadAction: it streams an InstallPlan's payload
// through the applier, optionally mirroring it to a P2P share file, and
// reports progress to a Delegate.
type Action struct {
	fetcher  fetcher.HttpFetcher
	applier  applier.PayloadWriter
	p2pMgr   p2p.Manager
	state    PayloadState
	boot     bootcontrol.BootControl
	resume   plan.ResumeStore
	delegate pipeline.Delegate
	p2pOpts  *options.P2POptions

	completer action.Completer
	p          *plan.InstallPlan

	mu            sync.Mutex
	bytesReceived uint64
	latched       bool
	latchedCode   errcode.ErrorCode

	p2pEnabled  bool
	p2pFileID   string
	p2pFile     p2p.ShareFile
	p2pPromoted bool

	downloadingFromP2P bool

	cancelRequested atomic.Bool
	done            atomic.Bool
}

// NewAction builds a DownloadAction over its collaborators. p2pMgr and
// state may be nil to disable P2P entirely, matching a deployment that
// never sets using_p2p_for_sharing.
func NewAction(f fetcher.HttpFetcher, ap applier.PayloadWriter, boot bootcontrol.BootControl, p2pMgr p2p.Manager, state PayloadState, resume plan.ResumeStore, delegate pipeline.Delegate, p2pOpts *options.P2POptions) *Action {
	if delegate == nil {
		delegate = pipeline.NopDelegate{}
	}
	return &Action{
		fetcher:  f,
		applier:  ap,
		boot:     boot,
		p2pMgr:   p2pMgr,
		state:    state,
		resume:   resume,
		delegate: delegate,
		p2pOpts:  p2pOpts,
	}
}

// Name implements action.Action.
func (a *Action) Name() string { return "DownloadAction" }

// SetInput implements action.HasInput.
func (a *Action) SetInput(v any) {
	p, ok := v.(*plan.InstallPlan)
	if !ok {
		return
	}
	a.p = p
}

// HasInputObject implements action.HasInput.
func (a *Action) HasInputObject() bool { return a.p != nil }

// Output implements action.HasOutput.
func (a *Action) Output() any { return a.p }

// SetCompleter wires the processor's completion callback.
func (a *Action) SetCompleter(c action.Completer) { a.completer = c }

// TerminateProcessing implements action.Action. It cascades to the fetcher;
// the transfer's eventual TransferTerminated callback (or an already
// latched error) drives the actual completion.
func (a *Action) TerminateProcessing() {
	if !a.cancelRequested.CompareAndSwap(false, true) {
		return
	}
	a.fetcher.TerminateTransfer()
}

// Perform implements action.Action.
func (a *Action) Perform(ctx context.Context) {
	guard := action.NewScopedCompleter(a.completer, errcode.Error)
	defer guard.Fire()

	if a.p == nil {
		log.Error(fmt.Errorf("no install plan"), "download action has no input")
		return
	}

	if a.boot != nil {
		if err := a.boot.MarkSlotUnbootable(a.p.TargetSlot); err != nil {
			// Non-fatal: rollback safety is degraded, not the update itself.
			log.Error(err, "mark target slot unbootable failed, continuing")
		}
	}

	a.setUpP2P()
	a.retuneForP2PDownload()

	a.fetcher.SetDelegate(a)

	offset := uint64(0)
	if a.p.IsResume && a.resume != nil {
		if off, ok := a.resume.Offset(a.resumeKey()); ok {
			offset = off
		}
	}
	a.mu.Lock()
	a.bytesReceived = offset
	a.mu.Unlock()

	a.delegate.SetDownloadStatus(true)
	metrics.DownloadActive.Set(1)

	if err := a.fetcher.BeginTransfer(ctx, a.p.DownloadURL, int64(offset)); err != nil {
		log.Error(err, "begin transfer failed")
		a.abortBeforeTransferStarted()
		guard.SetCode(errcode.DownloadTransferError)
		return
	}

	guard.Disarm()
}

// abortBeforeTransferStarted releases the resources Perform already
// acquired (the applier fd, the download-active status/metric) when
// BeginTransfer itself fails and the transfer never reaches
// TransferComplete/TransferTerminated to do it for us. Matches the §5
// resource policy: fds are released on every exit path, including this
// failure branch.
func (a *Action) abortBeforeTransferStarted() {
	a.delegate.SetDownloadStatus(false)
	metrics.DownloadActive.Set(0)
	if err := a.applier.Close(); err != nil {
		log.Error(err, "applier close failed")
	}
}

// setUpP2P applies the §4.2.1 policy table for download start.
func (a *Action) setUpP2P() {
	if a.p2pMgr == nil || a.state == nil {
		return
	}
	id := a.p2pMgr.FileID(a.p.PayloadHash, a.p.PayloadSize)

	if a.state.UsingP2PForSharing() {
		a.mu.Lock()
		a.p2pEnabled = true
		a.p2pFileID = id
		a.mu.Unlock()
		return
	}

	if _, ok := a.p2pMgr.Stat(id); ok {
		if err := a.p2pMgr.Delete(id); err != nil {
			log.Error(err, "delete stale p2p share file", "id", id)
		}
	}
}

func (a *Action) retuneForP2PDownload() {
	if a.state == nil || a.p2pOpts == nil {
		return
	}
	if !a.state.UsingP2PForDownloading() || a.p.DownloadURL != a.state.P2PURL() {
		return
	}
	a.downloadingFromP2P = true
	a.fetcher.SetLowSpeedLimit(a.p2pOpts.LowSpeedLimitBps, a.p2pOpts.LowSpeedTimeSeconds)
	a.fetcher.SetMaxRetryCount(a.p2pOpts.MaxRetryCount)
	a.fetcher.SetConnectTimeout(a.p2pOpts.ConnectTimeoutSecond)
}

func (a *Action) resumeKey() string {
	h := sha256.New()
	h.Write(a.p.PayloadHash)
	fmt.Fprintf(h, "%d", a.p.PayloadSize)
	return hex.EncodeToString(h.Sum(nil))
}

// ReceivedBytes implements fetcher.Delegate.
func (a *Action) ReceivedBytes(data []byte) {
	a.mu.Lock()
	offset := a.bytesReceived
	p2pEnabled := a.p2pEnabled
	a.mu.Unlock()

	if p2pEnabled {
		a.mirrorToP2P(offset, data)
	}

	a.mu.Lock()
	a.bytesReceived += uint64(len(data))
	current := a.bytesReceived
	a.mu.Unlock()

	a.delegate.BytesReceived(current, a.p.PayloadSize)

	source := "http"
	if a.downloadingFromP2P {
		source = "p2p"
	}
	metrics.BytesTransferredTotal.WithLabelValues(source).Add(float64(len(data)))

	if _, err := a.applier.Write(data); err != nil {
		log.Error(err, "applier write failed")
		a.latch(errcode.Error)
		a.deleteP2PFile()
		a.TerminateProcessing()
		return
	}

	a.mu.Lock()
	shouldPromote := a.p2pEnabled && !a.p2pPromoted
	a.mu.Unlock()
	if shouldPromote && a.applier.IsManifestValid() {
		a.promoteP2PVisible()
	}
}

// mirrorToP2P implements a per-write discipline: lazily allocate on first
// byte, detect a file shorter than the write offset as corruption, and
// disable P2P for the remainder of the transfer rather than failing the
// whole download.
func (a *Action) mirrorToP2P(offset uint64, data []byte) {
	a.mu.Lock()
	file := a.p2pFile
	id := a.p2pFileID
	a.mu.Unlock()

	if file == nil {
		f, err := a.p2pMgr.Allocate(id, a.p.PayloadSize)
		if err != nil {
			log.Error(err, "allocate p2p share file failed, disabling p2p", "id", id)
			a.disableP2P()
			return
		}
		a.mu.Lock()
		a.p2pFile = f
		file = f
		a.mu.Unlock()
	}

	length, ok := a.p2pMgr.Stat(id)
	if !ok || uint64(length) < offset {
		log.Error(fmt.Errorf("p2p share file shorter than resume offset"), "disabling p2p for this transfer", "id", id, "have", length, "want", offset)
		a.discardP2P()
		return
	}

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		log.Error(err, "p2p mirror write failed, disabling p2p", "id", id)
		a.discardP2P()
	}
}

func (a *Action) disableP2P() {
	a.mu.Lock()
	a.p2pEnabled = false
	a.mu.Unlock()
}

// discardP2P closes and deletes the in-flight share file, then disables
// further mirroring for this transfer — resume elsewhere must not
// propagate a bad file.
func (a *Action) discardP2P() {
	a.mu.Lock()
	file := a.p2pFile
	id := a.p2pFileID
	a.p2pFile = nil
	a.p2pEnabled = false
	a.mu.Unlock()

	if file != nil {
		file.Close()
	}
	if id != "" {
		if err := a.p2pMgr.Delete(id); err != nil {
			log.Error(err, "delete corrupted p2p share file", "id", id)
		}
	}
}

func (a *Action) promoteP2PVisible() {
	a.mu.Lock()
	id := a.p2pFileID
	a.mu.Unlock()

	if err := a.p2pMgr.MakeVisible(id); err != nil {
		log.Error(err, "promote p2p share file visible failed", "id", id)
		return
	}
	a.mu.Lock()
	a.p2pPromoted = true
	a.mu.Unlock()
}

// deleteP2PFile removes the share file on a cryptographic or applier
// failure (: "P2P artifacts are cleaned up on cryptographic failure
// but retained on voluntary termination").
func (a *Action) deleteP2PFile() {
	a.mu.Lock()
	file := a.p2pFile
	id := a.p2pFileID
	enabled := a.p2pEnabled
	a.p2pFile = nil
	a.p2pEnabled = false
	a.mu.Unlock()

	if !enabled {
		return
	}
	if file != nil {
		file.Close()
	}
	if id != "" {
		if err := a.p2pMgr.Delete(id); err != nil {
			log.Error(err, "delete p2p share file on failure", "id", id)
		}
	}
}

func (a *Action) latch(code errcode.ErrorCode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.latched {
		a.latched = true
		a.latchedCode = code
	}
}

// SeekToOffset implements fetcher.Delegate (resume semantics:
// bytes_received_ is set *before* the fetcher starts delivering bytes).
func (a *Action) SeekToOffset(offset int64) {
	a.mu.Lock()
	a.bytesReceived = uint64(offset)
	a.mu.Unlock()

	if a.resume != nil {
		a.resume.SetOffset(a.resumeKey(), uint64(offset))
	}
}

// TransferComplete implements fetcher.Delegate.
func (a *Action) TransferComplete(successful bool) {
	if !successful {
		a.finish(errcode.DownloadTransferError)
		return
	}

	code := a.applier.VerifyPayload(a.p.PayloadHash, a.p.PayloadSize)
	if code != errcode.Success {
		a.deleteP2PFile()
	} else if a.resume != nil {
		a.resume.Clear(a.resumeKey())
	}
	a.finish(code)
}

// TransferTerminated implements fetcher.Delegate.
func (a *Action) TransferTerminated() {
	a.mu.Lock()
	latched := a.latched
	code := a.latchedCode
	a.mu.Unlock()

	if latched {
		a.finish(code)
		return
	}

	// Voluntary termination with no latched error: keep the P2P file for a
	// future resume.
	a.finish(errcode.Error)
}

func (a *Action) finish(code errcode.ErrorCode) {
	if !a.done.CompareAndSwap(false, true) {
		return
	}
	a.delegate.SetDownloadStatus(false)
	metrics.DownloadActive.Set(0)
	metrics.TransfersTotal.WithLabelValues(code.String()).Inc()
	if err := a.applier.Close(); err != nil {
		log.Error(err, "applier close failed")
	}
	a.completer.Complete(code)
}
