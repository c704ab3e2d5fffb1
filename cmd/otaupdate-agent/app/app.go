package app

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"

	"github.com/cloupeer-io/otaupdate/cmd/otaupdate-agent/app/options"
	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/pkg/log"
)

// NewCommand builds the otaupdate-agent cobra command.
func NewCommand() *cobra.Command {
	opts := options.NewAgentOptions()

	cmd := &cobra.Command{
		Use:  "otaupdate-agent",
		Long: "otaupdate-agent downloads and verifies a single OTA update described by an install plan file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindViper(cmd.Flags()); err != nil {
				return err
			}
			if err := viper.Unmarshal(opts); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}
			if errs := opts.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid options: %v", errs)
			}

			log.Init(opts.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := NewAgent(opts).Run(ctx)
			if err != nil {
				log.Error(err, "update failed")
				return err
			}
			if code != errcode.Success {
				return fmt.Errorf("update finished with error code %s", code.String())
			}
			return nil
		},
	}

	var configFile string
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file.")
	cobra.OnInitialize(func() { initConfig(configFile) })

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	opts.AddFlags(cmd.Flags())

	return cmd
}

func initConfig(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("otaupdate-agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/otaupdate")
	}

	viper.SetEnvPrefix("OTAUPDATE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "read config file: %v\n", err)
		}
	}
}

func bindViper(fs *pflag.FlagSet) error {
	return viper.BindPFlags(fs)
}
