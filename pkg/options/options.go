package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is the contract every options group under pkg/options implements,
// so they can be composed uniformly under a root application options struct.
type IOptions interface {
	// Validate checks the current values and returns any problems found.
	Validate() []error

	// AddFlags registers the group's flags on the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a well-formed "host:port" pair.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address must not be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
