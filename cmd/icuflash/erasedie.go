package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEraseDieCmd(opts *rootOptions) *cobra.Command {
	var die int
	var yes bool

	cmd := &cobra.Command{
		Use:   "erase-die",
		Short: "Erase one whole die of the chip (destroys all data on it)",
		Long: "Administrative bring-up and reset operation. Erasing a die takes up to a " +
			"minute and is the only way to reclaim space on the chip.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to erase without --yes")
			}

			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			dev, err := openDevice(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				_ = dev.Close()
			}()

			if err := dev.EraseDie(die); err != nil {
				return err
			}
			fmt.Printf("Die %d erased\n", die)
			return nil
		},
	}
	cmd.Flags().IntVar(&die, "die", 0, "die number to erase")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the erase")
	return cmd
}
