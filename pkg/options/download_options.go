package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DownloadOptions)(nil)

// DownloadOptions tunes the non-P2P fetcher path; see P2POptions for the
// separate P2P retuning knobs.
type DownloadOptions struct {
	LowSpeedLimitBps     int           `json:"low-speed-limit-bps" mapstructure:"low-speed-limit-bps"`
	LowSpeedTimeSeconds  int           `json:"low-speed-time-seconds" mapstructure:"low-speed-time-seconds"`
	MaxRetryCount        int           `json:"max-retry-count" mapstructure:"max-retry-count"`
	ConnectTimeoutSecond int           `json:"connect-timeout-seconds" mapstructure:"connect-timeout-seconds"`
	TargetPath           string        `json:"target-path" mapstructure:"target-path"`
	InsecureSkipVerify   bool          `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
	StageTimeout         time.Duration `json:"stage-timeout" mapstructure:"stage-timeout"`
}

// NewDownloadOptions returns conservative defaults for a direct remote
// transfer.
func NewDownloadOptions() *DownloadOptions {
	return &DownloadOptions{
		LowSpeedLimitBps:     1,
		LowSpeedTimeSeconds:  30,
		MaxRetryCount:        3,
		ConnectTimeoutSecond: 30,
		TargetPath:           "/var/lib/otaupdate/payload.bin",
		InsecureSkipVerify:   false,
		StageTimeout:         30 * time.Minute,
	}
}

// Validate implements IOptions.
func (o *DownloadOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errors := []error{}
	if o.TargetPath == "" {
		errors = append(errors, fmt.Errorf("download.target-path must not be empty"))
	}
	return errors
}

// AddFlags implements IOptions.
func (o *DownloadOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.LowSpeedLimitBps, "download.low-speed-limit-bps", o.LowSpeedLimitBps, "Minimum acceptable transfer rate for the direct fetcher.")
	fs.IntVar(&o.LowSpeedTimeSeconds, "download.low-speed-time-seconds", o.LowSpeedTimeSeconds, "Window over which the direct fetcher's low-speed limit is evaluated.")
	fs.IntVar(&o.MaxRetryCount, "download.max-retry-count", o.MaxRetryCount, "Retry count for the direct fetcher.")
	fs.IntVar(&o.ConnectTimeoutSecond, "download.connect-timeout-seconds", o.ConnectTimeoutSecond, "Connect timeout in seconds for the direct fetcher.")
	fs.StringVar(&o.TargetPath, "download.target-path", o.TargetPath, "Path the downloaded payload is written to.")
	fs.BoolVar(&o.InsecureSkipVerify, "download.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification for an https:// update server. The s3:// fetcher always skips verification.")
	fs.DurationVar(&o.StageTimeout, "download.stage-timeout", o.StageTimeout, "Maximum time for the download stage. The agent does not apply this value.")
}
