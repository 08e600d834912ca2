package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore"
	"github.com/lasc-icu/flashstore/capture"
	"github.com/lasc-icu/flashstore/config"
	"github.com/lasc-icu/flashstore/uart"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the periodic capture-and-store loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()
			return runDaemon(cfg, log)
		},
	}
}

func runDaemon(cfg config.Config, log *zap.Logger) error {
	dev, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = dev.Close()
	}()

	store, err := flashstore.Open(dev, log)
	if err != nil {
		return err
	}

	// The command channel is optional: without it the logger still stores
	// images, it just cannot be controlled remotely.
	var port *uart.Port
	if p, err := uart.OpenPort(cfg.UART.Port, cfg.UART.Baud, log); err != nil {
		log.Warn("running without UART command channel", zap.Error(err))
	} else {
		port = p
		defer func() {
			_ = port.Close()
		}()
	}

	commands := newCommands(port, store, log)
	commands.LogAvailable()

	var sender uart.Sender
	if port != nil {
		sender = port
	}
	protocol := uart.NewProtocol(sender, commands, log)
	source := capture.NewDirSource(cfg.Capture.Dir, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("entering main loop",
		zap.Duration("interval", time.Duration(cfg.Store.Interval)),
		zap.Int("store_every", cfg.Store.Every))

	ticker := time.NewTicker(time.Duration(cfg.Store.Interval))
	defer ticker.Stop()

	for tick := 0; ; {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case <-ticker.C:
		}

		if port != nil {
			if err := pumpFrames(protocol, port); err != nil {
				// A poweroff or reboot command stops the loop; running
				// the OS action itself is outside this process.
				log.Info("graceful shutdown requested", zap.String("reason", err.Error()))
				return nil
			}
		}

		tick++
		if cfg.Store.Every > 0 && tick%cfg.Store.Every == 0 {
			storeOnce(store, source, log)
		}
	}
}

// pumpFrames drains queued serial bytes and handles every complete frame.
func pumpFrames(protocol *uart.Protocol, port *uart.Port) error {
	protocol.Pump(port)
	for {
		frame := protocol.ExtractFrame()
		if frame == nil {
			return nil
		}
		if err := protocol.HandleFrame(frame); err != nil {
			if errors.Is(err, uart.ErrPoweroffRequested) || errors.Is(err, uart.ErrRebootRequested) {
				return err
			}
			return nil
		}
	}
}

// storeOnce runs one capture-and-store cycle. Failures halt the cycle; the
// next period retries from scratch.
func storeOnce(store *flashstore.Store, source capture.Source, log *zap.Logger) {
	if store.Full() {
		log.Error("flash index is full, cannot store images")
		return
	}

	blob, err := source.Capture()
	if err != nil {
		log.Error("could not capture an image, halting cycle", zap.Error(err))
		return
	}

	if err := store.Store(blob); err != nil {
		log.Error("failed to store image, will retry on the next interval", zap.Error(err))
		return
	}
	log.Info("image stored",
		zap.Uint32("next_index_addr", uint32(store.Cursors().NextIndex)),
		zap.Uint32("next_data_addr", uint32(store.Cursors().NextData)))
}

func newCommands(port *uart.Port, store *flashstore.Store, log *zap.Logger) *uart.CommandSet {
	send := func(msg string) {
		if port == nil {
			return
		}
		if err := port.Send([]byte(msg)); err != nil {
			log.Error("failed to send response", zap.Error(err))
		}
	}

	commands := uart.NewCommandSet(log)
	commands.Register(uart.CmdPoweroff, "graceful system poweroff", func() error {
		send("ACK: Powering off...\n")
		return uart.ErrPoweroffRequested
	})
	commands.Register(uart.CmdReboot, "graceful system reboot", func() error {
		send("ACK: Rebooting...\n")
		return uart.ErrRebootRequested
	})
	commands.Register(uart.CmdStatus, "report system status", func() error {
		status := fmt.Sprintf("STATUS: | UART: %s | Flash: %s | Queue: %d msgs\n",
			portStatus(port), flashStatus(store), queueLen(port))
		log.Info("reporting status", zap.String("status", status))
		send(status)
		return nil
	})
	return commands
}

func portStatus(port *uart.Port) string {
	if port != nil && port.Running() {
		return "OK"
	}
	return "STOPPED"
}

func flashStatus(store *flashstore.Store) string {
	if store.Full() {
		return "FULL"
	}
	return "OK"
}

func queueLen(port *uart.Port) int {
	if port == nil {
		return 0
	}
	return port.QueueLen()
}
