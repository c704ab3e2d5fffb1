package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cloupeer-io/otaupdate/cmd/otaupdate-agent/app/options"
	"github.com/cloupeer-io/otaupdate/internal/action"
	"github.com/cloupeer-io/otaupdate/internal/applier"
	"github.com/cloupeer-io/otaupdate/internal/bootcontrol"
	"github.com/cloupeer-io/otaupdate/internal/download"
	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/internal/fetcher"
	"github.com/cloupeer-io/otaupdate/internal/p2p"
	"github.com/cloupeer-io/otaupdate/internal/pipeline"
	"github.com/cloupeer-io/otaupdate/internal/plan"
	"github.com/cloupeer-io/otaupdate/internal/verifier"
	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/metrics"
	"github.com/cloupeer-io/otaupdate/pkg/mqtt"
	pkgoptions "github.com/cloupeer-io/otaupdate/pkg/options"
)

// Agent wires the download-and-verify pipeline together for one update and
// runs it to completion.
type Agent struct {
	opts *options.AgentOptions
}

// NewAgent returns an Agent configured by opts.
func NewAgent(opts *options.AgentOptions) *Agent {
	return &Agent{opts: opts}
}

// Run performs the update described by opts.PlanFile and returns the
// pipeline's final outcome.
func (a *Agent) Run(ctx context.Context) (errcode.ErrorCode, error) {
	installPlan, err := loadPlan(a.opts.PlanFile)
	if err != nil {
		return errcode.Error, fmt.Errorf("load install plan: %w", err)
	}

	boot := bootcontrol.NewMockBootControl(a.opts.Boot.DeviceRoot)

	group, groupCtx := errgroup.WithContext(ctx)

	if a.opts.MetricsAddr != "" {
		group.Go(func() error { return serveMetrics(groupCtx, a.opts.MetricsAddr) })
	}

	var p2pMgr p2p.Manager
	var payloadState download.PayloadState = download.StaticPayloadState{}
	if a.opts.P2P.Enabled {
		fsMgr, err := p2p.NewFilesystemManager(a.opts.P2P.ShareDir)
		if err != nil {
			return errcode.Error, fmt.Errorf("create p2p manager: %w", err)
		}
		p2pMgr = fsMgr
		payloadState = download.StaticPayloadState{Sharing: true}

		srv := p2p.NewShareServer(&pkgoptions.HttpOptions{Addr: a.opts.P2P.ServerAddr}, a.opts.P2P.ShareDir)
		group.Go(func() error { return srv.Start(groupCtx) })
	}

	delegate := pipeline.Delegate(pipeline.NopDelegate{})
	if a.opts.MqttEnabled {
		client, err := mqtt.NewClient(a.opts.Mqtt.ToClientConfig())
		if err != nil {
			return errcode.Error, fmt.Errorf("create mqtt client: %w", err)
		}
		if err := client.Start(groupCtx); err != nil {
			return errcode.Error, fmt.Errorf("start mqtt client: %w", err)
		}
		defer client.Disconnect(context.Background())
		delegate = pipeline.NewMqttDelegate(client, a.opts.Mqtt.TopicRoot, a.opts.VehicleID)
	}

	f, err := newFetcher(installPlan.DownloadURL, a.opts.S3)
	if err != nil {
		return errcode.Error, fmt.Errorf("create fetcher: %w", err)
	}
	f.SetLowSpeedLimit(a.opts.Download.LowSpeedLimitBps, a.opts.Download.LowSpeedTimeSeconds)
	f.SetMaxRetryCount(a.opts.Download.MaxRetryCount)
	f.SetConnectTimeout(a.opts.Download.ConnectTimeoutSecond)
	if hf, ok := f.(*fetcher.HTTPFetcher); ok {
		hf.InsecureSkipVerify = a.opts.Download.InsecureSkipVerify
	}

	ap, err := applier.NewFileApplier(a.opts.Download.TargetPath)
	if err != nil {
		return errcode.Error, fmt.Errorf("open applier target: %w", err)
	}

	resume := plan.NewMemoryResumeStore()

	sourceHasher := verifier.NewFilesystemVerifierAction(verifier.ComputeSourceHash, boot)
	downloadAction := download.NewAction(f, ap, boot, p2pMgr, payloadState, resume, delegate, a.opts.P2P)
	targetHasher := verifier.NewFilesystemVerifierAction(verifier.VerifyTargetHash, boot)

	sourceHasher.SetInput(installPlan)

	done := make(chan errcode.ErrorCode, 1)
	proc := action.NewProcessor(
		[]action.Action{sourceHasher, downloadAction, targetHasher},
		action.DelegateFunc(func(code errcode.ErrorCode) { done <- code }),
	)

	group.Go(func() error {
		proc.Run(groupCtx)
		return nil
	})

	code := <-done
	log.Info("update pipeline finished", "code", code.String())

	fmt.Fprintln(os.Stdout, plan.FormatTable(installPlan))

	// The share and metrics servers, if running, only return once ctx is
	// cancelled; the caller cancels ctx after Run returns.
	return code, nil
}

func loadPlan(path string) (*plan.InstallPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan.InstallPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	return &p, nil
}

func newFetcher(downloadURL string, s3Opts *pkgoptions.S3Options) (fetcher.HttpFetcher, error) {
	if strings.HasPrefix(downloadURL, "s3://") {
		return fetcher.NewS3Fetcher(s3Opts)
	}
	return fetcher.NewHTTPFetcher(), nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Close()
	}
}
