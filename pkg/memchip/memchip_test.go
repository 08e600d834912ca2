package memchip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lasc-icu/flashstore/types"
)

const chipSize = 64 * 1024

func TestNewChipIsErased(t *testing.T) {
	assertT := assert.New(t)

	chip := New(chipSize)
	for _, b := range chip.Bytes(0, chipSize) {
		assertT.EqualValues(types.ErasedByte, b)
	}
}

func TestReadCommand(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	copy(chip.data[0x100:], []byte{0x01, 0x02, 0x03})

	rx, err := chip.Exchange([]byte{opReadData4B, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	requireT.NoError(err)
	requireT.Equal([]byte{0x01, 0x02, 0x03}, rx[5:])
}

func TestProgramRequiresWriteEnable(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	_, err := chip.Exchange([]byte{opPageProgram4B, 0x00, 0x00, 0x00, 0x00, 0xAA})
	requireT.Error(err)

	_, err = chip.Exchange([]byte{opWriteEnable})
	requireT.NoError(err)
	_, err = chip.Exchange([]byte{opPageProgram4B, 0x00, 0x00, 0x00, 0x00, 0xAA})
	requireT.NoError(err)
	requireT.Equal([]byte{0xAA}, chip.Bytes(0, 1))

	// The latch clears after every program.
	_, err = chip.Exchange([]byte{opPageProgram4B, 0x00, 0x00, 0x00, 0x01, 0xBB})
	requireT.Error(err)
}

func TestProgramOnlyClearsBits(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	program(t, chip, 0, []byte{0x0F})
	drainBusy(t, chip)
	program(t, chip, 0, []byte{0xF1})
	drainBusy(t, chip)

	requireT.Equal([]byte{0x01}, chip.Bytes(0, 1))
}

func TestProgramWrapsInsidePage(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	// 4 bytes programmed at offset 254 of page 0: the last two wrap to
	// offsets 0 and 1 instead of reaching page 1.
	program(t, chip, 254, []byte{0x01, 0x02, 0x03, 0x04})
	drainBusy(t, chip)

	requireT.Equal([]byte{0x01, 0x02}, chip.Bytes(254, 2))
	requireT.Equal([]byte{0x03, 0x04}, chip.Bytes(0, 2))
	requireT.Equal([]byte{0xFF}, chip.Bytes(256, 1))
}

func TestBusyStatus(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	program(t, chip, 0, []byte{0x00})

	for i := 0; i < programBusyReads; i++ {
		rx, err := chip.Exchange([]byte{opReadStatus1, 0x00})
		requireT.NoError(err)
		requireT.EqualValues(statusWIP, rx[1]&statusWIP)
	}
	rx, err := chip.Exchange([]byte{opReadStatus1, 0x00})
	requireT.NoError(err)
	requireT.Zero(rx[1] & statusWIP)
}

func TestCommandWhileBusyFails(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	program(t, chip, 0, []byte{0x00})

	_, err := chip.Exchange([]byte{opReadData4B, 0x00, 0x00, 0x00, 0x00, 0x00})
	requireT.Error(err)
}

func TestErase(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	program(t, chip, 0x1100, []byte{0x00, 0x00})
	drainBusy(t, chip)

	// Sector erase restores the whole containing 4KiB sector, address
	// aligned down by the chip.
	_, err := chip.Exchange([]byte{opWriteEnable})
	requireT.NoError(err)
	_, err = chip.Exchange([]byte{opSectorErase4KB, 0x00, 0x00, 0x11, 0x50})
	requireT.NoError(err)
	drainBusy(t, chip)

	requireT.Equal([]byte{0xFF, 0xFF}, chip.Bytes(0x1100, 2))
}

func TestProgramLog(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	program(t, chip, 10, []byte{0x01, 0x02})
	drainBusy(t, chip)
	program(t, chip, 300, []byte{0x03})

	requireT.Equal([]Program{{Addr: 10, Len: 2}, {Addr: 300, Len: 1}}, chip.Programs())
}

func TestClosed(t *testing.T) {
	requireT := require.New(t)

	chip := New(chipSize)
	requireT.NoError(chip.Close())
	_, err := chip.Exchange([]byte{opReadStatus1, 0x00})
	requireT.Error(err)
}

func program(t *testing.T, chip *Chip, addr types.Address, data []byte) {
	t.Helper()
	_, err := chip.Exchange([]byte{opWriteEnable})
	require.NoError(t, err)
	cmd := append([]byte{opPageProgram4B, byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}, data...)
	_, err = chip.Exchange(cmd)
	require.NoError(t, err)
}

func drainBusy(t *testing.T, chip *Chip) {
	t.Helper()
	for {
		rx, err := chip.Exchange([]byte{opReadStatus1, 0x00})
		require.NoError(t, err)
		if rx[1]&statusWIP == 0 {
			return
		}
	}
}
