// Package spi abstracts the SPI transport the flash driver talks through.
package spi

// MaxTransfer is the largest single full-duplex transfer the transport
// supports. This matches the Linux spidev default buffer size.
const MaxTransfer = 4096

// Transport performs one full-duplex SPI exchange. Implementations own the
// physical handle and must be safe for use from a single goroutine at a time;
// callers serialize access.
type Transport interface {
	// Exchange clocks tx out and returns the bytes clocked back in,
	// one for every byte transmitted.
	Exchange(tx []byte) ([]byte, error)

	// Close releases the transport. Exchanging on a closed transport
	// is a programming error and fails.
	Close() error
}
