// Package options collects the otaupdate-agent's command-line and config
// surface, composing the same options.IOptions groups the rest of the
// module already defines.
package options

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/options"
)

// AgentOptions is the root configuration for a single otaupdate-agent run.
// Unlike a long-lived daemon, one invocation performs exactly one update
// (scope: preparation and scheduling of *which* update to apply
// are out of scope) and exits once it has the resulting
// errcode.ErrorCode: with status 0 for Success and 1 for any other code.
type AgentOptions struct {
	// PlanFile is the path to a JSON-encoded plan.InstallPlan describing
	// the update to perform.
	PlanFile string `json:"plan-file" mapstructure:"plan-file"`

	// VehicleID identifies this agent on the MQTT progress topic.
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	// MetricsAddr, if non-empty, serves the prometheus registry over HTTP.
	MetricsAddr string `json:"metrics-addr" mapstructure:"metrics-addr"`

	// MqttEnabled controls whether download progress is published over
	// MQTT in addition to being logged.
	MqttEnabled bool `json:"mqtt-enabled" mapstructure:"mqtt-enabled"`

	Log      *log.Options            `json:"log" mapstructure:"log"`
	Mqtt     *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	S3       *options.S3Options      `json:"s3" mapstructure:"s3"`
	Download *options.DownloadOptions `json:"download" mapstructure:"download"`
	P2P      *options.P2POptions     `json:"p2p" mapstructure:"p2p"`
	Boot     *options.BootOptions    `json:"boot" mapstructure:"boot"`
}

// NewAgentOptions returns an AgentOptions with every group defaulted.
func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		VehicleID:   "vehicle-local-001",
		MetricsAddr: "",
		MqttEnabled: false,
		Log:         log.NewOptions(),
		Mqtt:        options.NewMqttOptions(),
		S3:          options.NewS3Options(),
		Download:    options.NewDownloadOptions(),
		P2P:         options.NewP2POptions(),
		Boot:        options.NewBootOptions(),
	}
}

// AddFlags registers every group's flags plus the agent's own top-level ones.
func (o *AgentOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.PlanFile, "plan-file", o.PlanFile, "Path to a JSON-encoded install plan describing the update to perform.")
	fs.StringVar(&o.VehicleID, "vehicle-id", o.VehicleID, "Identifier this agent reports progress under.")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "Address to serve prometheus metrics on. Empty disables the metrics server.")
	fs.BoolVar(&o.MqttEnabled, "mqtt-enabled", o.MqttEnabled, "Publish download progress over MQTT in addition to logging it.")

	o.Log.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.S3.AddFlags(fs)
	o.Download.AddFlags(fs)
	o.P2P.AddFlags(fs)
	o.Boot.AddFlags(fs)
}

// Validate checks every group and the agent's own top-level fields.
func (o *AgentOptions) Validate() []error {
	var errs []error
	if o.PlanFile == "" {
		errs = append(errs, fmt.Errorf("plan-file is required"))
	}
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Download.Validate()...)
	errs = append(errs, o.P2P.Validate()...)
	errs = append(errs, o.Boot.Validate()...)
	return errs
}
