package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lasc-icu/flashstore/recovery"
)

func newRecoverCmd(opts *rootOptions) *cobra.Command {
	var dir, ext string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover every stored image from flash into files",
		Long: "Scans the on-chip index and writes one numbered file per stored image. " +
			"Purely a reader; safe to run on a chip pulled from a dead board.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			if dir == "" {
				dir = cfg.Recovery.Dir
			}
			if ext == "" {
				ext = cfg.Recovery.Extension
			}

			dev, err := openDevice(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				_ = dev.Close()
			}()

			recovered, found, err := recovery.New(dev, ext, log).ScanAndRecover(dir)
			if err != nil {
				return err
			}

			if found == 0 {
				fmt.Println("No valid image entries found in the index")
				return nil
			}
			fmt.Printf("Total images found:     %d\n", found)
			fmt.Printf("Successfully recovered: %d\n", recovered)
			fmt.Printf("Failed:                 %d\n", found-recovered)
			fmt.Printf("Recovery directory:     %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	cmd.Flags().StringVar(&ext, "ext", "", "output file extension (default from config)")
	return cmd
}
