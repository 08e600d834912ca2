// Package spidev provides the real SPI transport on Linux through periph.io.
package spidev

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
	periphspi "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Transport drives one spidev device.
type Transport struct {
	port periphspi.PortCloser
	conn periphspi.Conn
}

// Open opens /dev/spidev<bus>.<device> at the given speed and mode.
func Open(bus, device int, speedHz int64, mode int, log *zap.Logger) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.WithStack(err)
	}

	ref := fmt.Sprintf("/dev/spidev%d.%d", bus, device)
	port, err := spireg.Open(ref)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s, ensure SPI is enabled on the board", ref)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, periphspi.Mode(mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, errors.WithStack(err)
	}

	log.Info("SPI connection opened",
		zap.String("device", ref),
		zap.Int64("speed_hz", speedHz),
		zap.Int("mode", mode))

	return &Transport{
		port: port,
		conn: conn,
	}, nil
}

// Exchange performs one full-duplex transfer.
func (t *Transport) Exchange(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	if err := t.conn.Tx(tx, rx); err != nil {
		return nil, errors.WithStack(err)
	}
	return rx, nil
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	return errors.WithStack(t.port.Close())
}
