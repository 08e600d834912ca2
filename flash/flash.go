// Package flash drives an SPI NOR flash chip: byte reads, page-chunked
// programming and block erases, each mutation gated by write enable and
// completed by polling the status register.
package flash

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore/spi"
	"github.com/lasc-icu/flashstore/types"
)

// Chip command set. All commands carry 4-byte big-endian addresses.
const (
	opWriteEnable    = 0x06
	opReadStatus1    = 0x05
	opPageProgram4B  = 0x12
	opReadData4B     = 0x13
	opSectorErase4KB = 0x21
	opBlockErase32KB = 0x5C
	opBlockErase64KB = 0xDC
	opDieErase4B     = 0xC4

	statusWIP = 0x01

	cmdOverhead = 5 // opcode + 4 address bytes
)

const (
	wipPollInterval = time.Millisecond

	programTimeout = 10 * time.Second
	eraseTimeout   = 30 * time.Second
	// Die erase is by far the slowest operation the chip supports.
	dieEraseTimeout = time.Minute
)

// EraseSize selects the erase granularity in KiB.
type EraseSize int

// Supported erase granularities.
const (
	Erase4KB  EraseSize = 4
	Erase32KB EraseSize = 32
	Erase64KB EraseSize = 64
)

var eraseOps = map[EraseSize]struct {
	op   byte
	size types.Address
}{
	Erase4KB:  {op: opSectorErase4KB, size: 4 * 1024},
	Erase32KB: {op: opBlockErase32KB, size: 32 * 1024},
	Erase64KB: {op: opBlockErase64KB, size: 64 * 1024},
}

// ErrClosed is returned when the device is used after Close. Hitting it is a
// programming error, not a hardware condition.
var ErrClosed = errors.New("flash device is closed")

// Device is a flash chip behind an SPI transport. It is not safe for
// concurrent use; callers owning more than one goroutine must serialize.
type Device struct {
	t      spi.Transport
	log    *zap.Logger
	closed bool
}

// New returns a device over the given transport.
func New(t spi.Transport, log *zap.Logger) *Device {
	return &Device{
		t:   t,
		log: log,
	}
}

// Close closes the device and its transport.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.t.Close(); err != nil {
		return err
	}
	d.log.Info("SPI connection closed")
	return nil
}

// Read returns length bytes starting at addr. A non-positive length is a
// no-op returning no data.
func (d *Device) Read(addr types.Address, length int) ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if length <= 0 {
		d.log.Warn("read length must be positive", zap.Int("length", length))
		return nil, nil
	}

	cmd := make([]byte, cmdOverhead+length)
	cmd[0] = opReadData4B
	putAddress(cmd[1:], addr)

	rx, err := d.t.Exchange(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at 0x%08X", length, addr)
	}
	if len(rx) < cmdOverhead {
		return nil, errors.Errorf("short transfer reading at 0x%08X: %d bytes", addr, len(rx))
	}
	return rx[cmdOverhead:], nil
}

// Write programs data starting at addr, splitting it at page boundaries.
// A program command crossing a page boundary would wrap inside the page on
// the chip, so each chunk is clamped to the distance to the next boundary
// and programmed with its own write-enable and busy-wait cycle.
func (d *Device) Write(addr types.Address, data []byte) error {
	if d.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return errors.New("no data to write")
	}

	written := 0
	for written < len(data) {
		current := addr + types.Address(written)

		toPageEnd := types.PageSize - int(current%types.PageSize)
		chunk := len(data) - written
		if chunk > toPageEnd {
			chunk = toPageEnd
		}

		if err := d.programPage(current, data[written:written+chunk]); err != nil {
			d.log.Error("write failed",
				zap.Uint32("address", uint32(addr)),
				zap.Int("failed_at_byte", written),
				zap.Error(err))
			return errors.Wrapf(err, "writing at byte offset %d of 0x%08X", written, addr)
		}
		written += chunk
	}

	d.log.Debug("wrote bytes", zap.Uint32("address", uint32(addr)), zap.Int("length", len(data)))
	return nil
}

// Erase erases the block of the given granularity containing addr.
func (d *Device) Erase(addr types.Address, size EraseSize) error {
	if d.closed {
		return ErrClosed
	}
	op, ok := eraseOps[size]
	if !ok {
		return errors.Errorf("invalid erase size: %dKB, must be 4, 32 or 64", size)
	}

	aligned := addr / op.size * op.size
	d.log.Info("erasing block",
		zap.Int("size_kb", int(size)),
		zap.Uint32("block_address", uint32(aligned)),
		zap.Uint32("requested_address", uint32(addr)))

	if err := d.writeEnable(); err != nil {
		return err
	}
	cmd := make([]byte, cmdOverhead)
	cmd[0] = op.op
	putAddress(cmd[1:], addr)
	if _, err := d.t.Exchange(cmd); err != nil {
		return errors.Wrapf(err, "erasing %dKB block at 0x%08X", size, addr)
	}
	return d.waitWriteComplete(eraseTimeout)
}

// EraseDie erases a whole die. Administrative operation for chip bring-up
// and reset; may run for up to a minute.
func (d *Device) EraseDie(die int) error {
	if d.closed {
		return ErrClosed
	}
	if die < 0 || die >= types.NumDies {
		return errors.Errorf("invalid die number: %d, must be 0..%d", die, types.NumDies-1)
	}

	addr := types.Address(die) * types.DieSize
	d.log.Warn("starting die erase",
		zap.Int("die", die),
		zap.Uint32("address", uint32(addr)),
		zap.Duration("timeout", dieEraseTimeout))

	if err := d.writeEnable(); err != nil {
		return err
	}
	cmd := make([]byte, cmdOverhead)
	cmd[0] = opDieErase4B
	putAddress(cmd[1:], addr)
	if _, err := d.t.Exchange(cmd); err != nil {
		return errors.Wrapf(err, "erasing die %d", die)
	}
	if err := d.waitWriteComplete(dieEraseTimeout); err != nil {
		return err
	}

	d.log.Info("die erase complete", zap.Int("die", die))
	return nil
}

// programPage issues one write-enable + page program + busy-wait cycle for a
// chunk guaranteed not to cross a page boundary.
func (d *Device) programPage(addr types.Address, chunk []byte) error {
	if len(chunk) > types.PageSize {
		return errors.Errorf("chunk size %d exceeds page size %d", len(chunk), types.PageSize)
	}

	if err := d.writeEnable(); err != nil {
		return err
	}

	cmd := make([]byte, cmdOverhead+len(chunk))
	cmd[0] = opPageProgram4B
	putAddress(cmd[1:], addr)
	copy(cmd[cmdOverhead:], chunk)

	if _, err := d.t.Exchange(cmd); err != nil {
		return errors.Wrapf(err, "programming page at 0x%08X", addr)
	}
	return d.waitWriteComplete(programTimeout)
}

func (d *Device) writeEnable() error {
	if _, err := d.t.Exchange([]byte{opWriteEnable}); err != nil {
		return errors.Wrap(err, "sending write enable")
	}
	return nil
}

// waitWriteComplete polls status register 1 until the WIP bit clears or the
// timeout elapses. Timing out is a hardware fault reported to the caller;
// the device never retries on its own.
func (d *Device) waitWriteComplete(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		rx, err := d.t.Exchange([]byte{opReadStatus1, 0x00})
		if err != nil {
			return errors.Wrap(err, "reading status register")
		}
		if len(rx) < 2 {
			return errors.Errorf("short status transfer: %d bytes", len(rx))
		}
		if rx[1]&statusWIP == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("write operation timeout after %s", timeout)
		}
		time.Sleep(wipPollInterval)
	}
}

func putAddress(b []byte, addr types.Address) {
	b[0] = byte(addr >> 24)
	b[1] = byte(addr >> 16)
	b[2] = byte(addr >> 8)
	b[3] = byte(addr)
}
