package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lasc-icu/flashstore/index"
	"github.com/lasc-icu/flashstore/types"
)

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print every valid index entry on the chip",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			count := 0
			err = index.Walk(dev, func(n int, addr types.Address, e types.Entry) error {
				count++
				fmt.Printf("Image %d:\n", count)
				fmt.Printf("  Index location:  0x%08X\n", uint32(addr))
				fmt.Printf("  Data start addr: 0x%08X\n", uint32(e.StartAddr))
				fmt.Printf("  Data end addr:   0x%08X\n", uint32(e.EndAddr))
				fmt.Printf("  Image size:      %d bytes\n", e.Size())
				return nil
			})
			if err != nil {
				return err
			}

			if count == 0 {
				fmt.Println("No valid image entries found in the index")
			} else {
				fmt.Printf("Total images stored: %d\n", count)
			}
			return nil
		},
	}
}
