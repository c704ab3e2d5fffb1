package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cloupeer-io/otaupdate/pkg/log"
)

// readChunkSize is the size of each ReceivedBytes delivery; unrelated to
// hasher.ReadFileBufferSize, which governs the verifier's own device reads.
const readChunkSize = 64 * 1024

// HTTPFetcher streams a payload over net/http, grounded on this codebase's
// downloadAndVerify client construction (TLS config, client timeout)
// generalized from a one-shot GET into the callback-driven contract
// DownloadAction requires.
type HTTPFetcher struct {
	mu sync.Mutex

	delegate Delegate

	lowSpeedBps     int
	lowSpeedSeconds int
	maxRetryCount   int
	connectTimeout  time.Duration

	// InsecureSkipVerify disables TLS certificate verification, for
	// self-signed update servers in dev environments. It defaults to off
	// and is not tied to P2P retuning (that only adjusts the fields above).
	InsecureSkipVerify bool

	cancel context.CancelFunc
}

// NewHTTPFetcher returns a fetcher with conservative defaults; callers tune
// it via the Set* methods before BeginTransfer (set_delegate,
// set_low_speed_limit, ...).
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		lowSpeedBps:     1,
		lowSpeedSeconds: 30,
		maxRetryCount:   3,
		connectTimeout:  30 * time.Second,
	}
}

// SetDelegate implements HttpFetcher.
func (f *HTTPFetcher) SetDelegate(d Delegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegate = d
}

// SetLowSpeedLimit implements HttpFetcher.
func (f *HTTPFetcher) SetLowSpeedLimit(bps, seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowSpeedBps = bps
	f.lowSpeedSeconds = seconds
}

// SetMaxRetryCount implements HttpFetcher.
func (f *HTTPFetcher) SetMaxRetryCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxRetryCount = n
}

// SetConnectTimeout implements HttpFetcher.
func (f *HTTPFetcher) SetConnectTimeout(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectTimeout = time.Duration(seconds) * time.Second
}

// BeginTransfer implements HttpFetcher.
func (f *HTTPFetcher) BeginTransfer(ctx context.Context, url string, offset int64) error {
	f.mu.Lock()
	delegate := f.delegate
	maxRetry := f.maxRetryCount
	connectTimeout := f.connectTimeout
	lowSpeedBps := f.lowSpeedBps
	lowSpeedSeconds := f.lowSpeedSeconds
	insecure := f.InsecureSkipVerify
	f.mu.Unlock()

	if delegate == nil {
		return fmt.Errorf("http fetcher: begin transfer without a delegate")
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	go f.run(runCtx, url, offset, maxRetry, connectTimeout, lowSpeedBps, lowSpeedSeconds, insecure, delegate)
	return nil
}

// TerminateTransfer implements HttpFetcher.
func (f *HTTPFetcher) TerminateTransfer() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *HTTPFetcher) run(ctx context.Context, url string, offset int64, maxRetry int, connectTimeout time.Duration, lowSpeedBps, lowSpeedSeconds int, insecure bool, delegate Delegate) {
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
			ResponseHeaderTimeout: connectTimeout,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		if attempt > 0 {
			log.Info("http fetcher retrying", "attempt", attempt, "url", url)
		}

		ok, terminated, err := f.attempt(ctx, client, url, offset, lowSpeedBps, lowSpeedSeconds, delegate)
		if terminated {
			delegate.TransferTerminated()
			return
		}
		if ok {
			delegate.TransferComplete(true)
			return
		}
		lastErr = err

		select {
		case <-ctx.Done():
			delegate.TransferTerminated()
			return
		default:
		}
	}

	log.Error(lastErr, "http fetcher exhausted retries", "url", url)
	delegate.TransferComplete(false)
}

// attempt runs a single HTTP GET and streams the body to delegate. ok is
// true on a clean transfer-complete; terminated is true if ctx was cancelled
// mid-stream, which takes priority over reporting a plain failure.
func (f *HTTPFetcher) attempt(ctx context.Context, client *http.Client, url string, offset int64, lowSpeedBps, lowSpeedSeconds int, delegate Delegate) (ok bool, terminated bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, false, fmt.Errorf("build request: %w", err)
	}
	resumed := false
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
		resumed = true
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, true, nil
		}
		return false, false, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		resumed = false // server ignored the Range request; starting over
	case http.StatusPartialContent:
		// resumed as requested
	default:
		return false, false, fmt.Errorf("server returned status: %s", resp.Status)
	}

	if resumed {
		delegate.SeekToOffset(offset)
	}

	stall := newStallGuard(lowSpeedBps, lowSpeedSeconds)
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return false, true, nil
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			stall.recordProgress(n)
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			delegate.ReceivedBytes(chunk)
		}
		if readErr == io.EOF {
			return true, false, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return false, true, nil
			}
			return false, false, fmt.Errorf("read body: %w", readErr)
		}
		if stall.stalled() {
			return false, false, fmt.Errorf("transfer below low-speed limit (%d bps for %ds)", lowSpeedBps, lowSpeedSeconds)
		}
	}
}

// stallGuard implements the low-speed abort policy named by
// download_p2p_low_speed_limit_bps / download_p2p_low_speed_time_seconds in
// tuning constants.
type stallGuard struct {
	minBps  int
	window  time.Duration
	started time.Time
	last    time.Time
	bytes   int
}

func newStallGuard(minBps, seconds int) *stallGuard {
	now := time.Now()
	return &stallGuard{minBps: minBps, window: time.Duration(seconds) * time.Second, started: now, last: now}
}

func (g *stallGuard) recordProgress(n int) {
	g.bytes += n
	g.last = time.Now()
}

func (g *stallGuard) stalled() bool {
	if g.minBps <= 0 || g.window <= 0 {
		return false
	}
	elapsed := time.Since(g.started)
	if elapsed < g.window {
		return false
	}
	achievedBps := float64(g.bytes) / elapsed.Seconds()
	return achievedBps < float64(g.minBps)
}
