// Command icuflash controls the flash image logger: the capture-and-store
// daemon, the offline recovery tool and chip administration.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
