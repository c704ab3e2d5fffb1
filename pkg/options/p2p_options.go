package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*P2POptions)(nil)

// P2POptions lifts the four P2P tuning constants
// (download_p2p_low_speed_limit_bps, download_p2p_low_speed_time_seconds,
// download_p2p_max_retry_count, download_p2p_connect_timeout_seconds) into a
// flag/viper-configurable struct rather than inline constants in
// DownloadAction.
type P2POptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// ShareDir is the directory P2POptions-backed managers store share
	// files and sidecar metadata in.
	ShareDir string `json:"share-dir" mapstructure:"share-dir"`

	// ServerAddr is the local address the share server listens on for
	// peer file requests.
	ServerAddr string `json:"server-addr" mapstructure:"server-addr"`

	// LowSpeedLimitBps/LowSpeedTimeSeconds retune the fetcher when
	// downloading *from* a peer (download_url == p2p_url).
	LowSpeedLimitBps     int `json:"low-speed-limit-bps" mapstructure:"low-speed-limit-bps"`
	LowSpeedTimeSeconds  int `json:"low-speed-time-seconds" mapstructure:"low-speed-time-seconds"`
	MaxRetryCount        int `json:"max-retry-count" mapstructure:"max-retry-count"`
	ConnectTimeoutSecond int `json:"connect-timeout-seconds" mapstructure:"connect-timeout-seconds"`
}

// NewP2POptions returns defaults for a "lower low-speed threshold, lower
// retry count, shorter connect timeout" retuning policy for P2P peer
// transfers, as opposed to a regular remote download.
func NewP2POptions() *P2POptions {
	return &P2POptions{
		Enabled:              true,
		ShareDir:             "/var/lib/otaupdate/p2p",
		ServerAddr:           "0.0.0.0:8099",
		LowSpeedLimitBps:     1024,
		LowSpeedTimeSeconds:  10,
		MaxRetryCount:        1,
		ConnectTimeoutSecond: 5,
	}
}

// Validate implements IOptions.
func (o *P2POptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}
	if o.Enabled {
		if err := ValidateAddress(o.ServerAddr); err != nil {
			errors = append(errors, err)
		}
	}
	return errors
}

// AddFlags implements IOptions.
func (o *P2POptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "p2p.enabled", o.Enabled, "Enable P2P sharing of the payload: mirror it into the share directory and serve it to peers. The agent does not download from peers.")
	fs.StringVar(&o.ShareDir, "p2p.share-dir", o.ShareDir, "Directory backing the P2P share file manager.")
	fs.StringVar(&o.ServerAddr, "p2p.server-addr", o.ServerAddr, "Bind address for the local P2P share server.")
	fs.IntVar(&o.LowSpeedLimitBps, "p2p.low-speed-limit-bps", o.LowSpeedLimitBps, "Minimum acceptable transfer rate when downloading over P2P.")
	fs.IntVar(&o.LowSpeedTimeSeconds, "p2p.low-speed-time-seconds", o.LowSpeedTimeSeconds, "Window over which the P2P low-speed limit is evaluated.")
	fs.IntVar(&o.MaxRetryCount, "p2p.max-retry-count", o.MaxRetryCount, "Retry count when downloading over P2P.")
	fs.IntVar(&o.ConnectTimeoutSecond, "p2p.connect-timeout-seconds", o.ConnectTimeoutSecond, "Connect timeout in seconds when downloading over P2P.")
}
