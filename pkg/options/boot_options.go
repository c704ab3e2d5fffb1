package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*BootOptions)(nil)

// BootOptions configures the directory-backed BootControl mock used in
// place of a real bootloader integration.
type BootOptions struct {
	DeviceRoot string `json:"device-root" mapstructure:"device-root"`
}

// NewBootOptions returns defaults pointing at a local scratch directory.
func NewBootOptions() *BootOptions {
	return &BootOptions{
		DeviceRoot: "/var/lib/otaupdate/devices",
	}
}

// Validate implements IOptions.
func (o *BootOptions) Validate() []error {
	if o == nil {
		return nil
	}
	return []error{}
}

// AddFlags implements IOptions.
func (o *BootOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DeviceRoot, "boot.device-root", o.DeviceRoot, "Root directory standing in for real block devices.")
}
