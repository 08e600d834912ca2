package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore/config"
	"github.com/lasc-icu/flashstore/flash"
	"github.com/lasc-icu/flashstore/pkg/spidev"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "icuflash",
		Short:         "Flash image logger for the ICU payload board",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newRecoverCmd(opts),
		newSummaryCmd(opts),
		newEraseDieCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	log, err := o.logger()
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func openDevice(cfg config.Config, log *zap.Logger) (*flash.Device, error) {
	transport, err := spidev.Open(cfg.SPI.Bus, cfg.SPI.Device, cfg.SPI.SpeedHz, cfg.SPI.Mode, log)
	if err != nil {
		return nil, err
	}
	return flash.New(transport, log), nil
}
