// Package memchip simulates an SPI NOR flash chip in memory. It decodes the
// same command set as the physical part and is used by tests in place of
// hardware.
package memchip

import (
	"github.com/pkg/errors"

	"github.com/lasc-icu/flashstore/types"
)

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

// Busy-poll counts per operation. A program or erase keeps the WIP bit set
// for this many status reads so drivers actually exercise their wait loops.
const (
	programBusyReads = 2
	eraseBusyReads   = 4
)

// Program records one page program command as issued on the wire.
type Program struct {
	Addr types.Address
	Len  int
}

// Chip is an in-memory NOR flash behind the spi.Transport interface.
type Chip struct {
	data      []byte
	wel       bool
	busyReads int
	closed    bool
	programs  []Program
}

// New returns a chip of the given size with every byte erased.
func New(size int) *Chip {
	data := make([]byte, size)
	for i := range data {
		data[i] = types.ErasedByte
	}
	return &Chip{data: data}
}

// Exchange decodes and executes one command buffer.
func (c *Chip) Exchange(tx []byte) ([]byte, error) {
	if c.closed {
		return nil, errors.New("chip is closed")
	}
	if len(tx) == 0 {
		return nil, errors.New("empty transfer")
	}

	rx := make([]byte, len(tx))

	switch tx[0] {
	case opReadStatus1:
		if c.busyReads > 0 {
			c.busyReads--
			for i := 1; i < len(rx); i++ {
				rx[i] = statusWIP
			}
		}
		return rx, nil
	case opWriteEnable:
		if c.busyReads > 0 {
			return nil, errors.New("write enable while busy")
		}
		c.wel = true
		return rx, nil
	}

	if c.busyReads > 0 {
		return nil, errors.Errorf("command 0x%02X while busy", tx[0])
	}
	if len(tx) < cmdOverhead {
		return nil, errors.Errorf("command 0x%02X too short: %d bytes", tx[0], len(tx))
	}
	addr := types.Address(tx[1])<<24 | types.Address(tx[2])<<16 | types.Address(tx[3])<<8 | types.Address(tx[4])

	switch tx[0] {
	case opReadData4B:
		if int(addr) < len(c.data) {
			copy(rx[cmdOverhead:], c.data[addr:])
		}
		return rx, nil
	case opPageProgram4B:
		return rx, c.program(addr, tx[cmdOverhead:])
	case opSectorErase4KB:
		return rx, c.erase(addr, 4*1024)
	case opBlockErase32KB:
		return rx, c.erase(addr, 32*1024)
	case opBlockErase64KB:
		return rx, c.erase(addr, 64*1024)
	case opDieErase4B:
		return rx, c.erase(addr, types.DieSize)
	default:
		return nil, errors.Errorf("unknown opcode: 0x%02X", tx[0])
	}
}

// Close closes the chip. Further exchanges fail.
func (c *Chip) Close() error {
	c.closed = true
	return nil
}

// program models page programming: bits can only be cleared, and a command
// whose data runs past the page end wraps to the start of the same page.
func (c *Chip) program(addr types.Address, data []byte) error {
	if !c.wel {
		return errors.New("page program without write enable")
	}
	c.wel = false

	pageBase := addr &^ (types.PageSize - 1)
	offset := int(addr - pageBase)
	for i, b := range data {
		pos := int(pageBase) + (offset+i)%types.PageSize
		if pos >= len(c.data) {
			return errors.Errorf("program beyond chip end at 0x%08X", pos)
		}
		c.data[pos] &= b
	}

	c.programs = append(c.programs, Program{Addr: addr, Len: len(data)})
	c.busyReads = programBusyReads
	return nil
}

func (c *Chip) erase(addr types.Address, size int) error {
	if !c.wel {
		return errors.New("erase without write enable")
	}
	c.wel = false

	base := (int(addr) / size) * size
	end := base + size
	if end > len(c.data) {
		end = len(c.data)
	}
	for i := base; i < end; i++ {
		c.data[i] = types.ErasedByte
	}

	c.busyReads = eraseBusyReads
	return nil
}

// Bytes returns a copy of length bytes starting at addr, for assertions.
func (c *Chip) Bytes(addr types.Address, length int) []byte {
	out := make([]byte, length)
	copy(out, c.data[addr:])
	return out
}

// Programs returns the log of page program commands issued so far.
func (c *Chip) Programs() []Program {
	return c.programs
}

// ResetPrograms clears the program log.
func (c *Chip) ResetPrograms() {
	c.programs = nil
}
