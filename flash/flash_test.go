package flash

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore/pkg/memchip"
	"github.com/lasc-icu/flashstore/types"
)

const chipSize = 256 * 1024

func newDevice() (*Device, *memchip.Chip) {
	chip := memchip.New(chipSize)
	return New(chip, zap.NewNop()), chip
}

func TestReadWriteRoundTrip(t *testing.T) {
	requireT := require.New(t)

	dev, _ := newDevice()

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	requireT.NoError(dev.Write(0x1000, data))

	got, err := dev.Read(0x1000, len(data))
	requireT.NoError(err)
	requireT.Equal(data, got)
}

func TestReadNonPositiveLength(t *testing.T) {
	requireT := require.New(t)

	dev, _ := newDevice()

	got, err := dev.Read(0, 0)
	requireT.NoError(err)
	requireT.Empty(got)

	got, err = dev.Read(0, -5)
	requireT.NoError(err)
	requireT.Empty(got)
}

func TestWriteEmpty(t *testing.T) {
	requireT := require.New(t)

	dev, _ := newDevice()
	requireT.Error(dev.Write(0, nil))
}

func TestWriteChunksAtPageBoundary(t *testing.T) {
	requireT := require.New(t)

	dev, chip := newDevice()

	// 300 bytes starting at offset 200 of the first page: 56 bytes up to
	// the boundary, then the remaining 244.
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	requireT.NoError(dev.Write(200, data))

	requireT.Equal([]memchip.Program{
		{Addr: 200, Len: 56},
		{Addr: 256, Len: 244},
	}, chip.Programs())

	got, err := dev.Read(200, len(data))
	requireT.NoError(err)
	requireT.Equal(data, got)
}

func TestWriteMultiplePages(t *testing.T) {
	requireT := require.New(t)

	dev, chip := newDevice()

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	requireT.NoError(dev.Write(types.PageSize, data))

	requireT.Equal([]memchip.Program{
		{Addr: 256, Len: 256},
		{Addr: 512, Len: 256},
		{Addr: 768, Len: 256},
		{Addr: 1024, Len: 232},
	}, chip.Programs())

	got, err := dev.Read(types.PageSize, len(data))
	requireT.NoError(err)
	requireT.Equal(data, got)
}

func TestWritePageAligned(t *testing.T) {
	requireT := require.New(t)

	dev, chip := newDevice()

	data := make([]byte, types.PageSize)
	requireT.NoError(dev.Write(0, data))
	requireT.Equal([]memchip.Program{{Addr: 0, Len: types.PageSize}}, chip.Programs())
}

func TestErase(t *testing.T) {
	requireT := require.New(t)

	dev, _ := newDevice()

	requireT.NoError(dev.Write(0x1100, []byte{0x00, 0x01, 0x02}))
	requireT.NoError(dev.Erase(0x1100, Erase4KB))

	got, err := dev.Read(0x1100, 3)
	requireT.NoError(err)
	requireT.Equal([]byte{0xFF, 0xFF, 0xFF}, got)
}

func TestEraseInvalidSize(t *testing.T) {
	requireT := require.New(t)

	dev, _ := newDevice()
	requireT.Error(dev.Erase(0, EraseSize(16)))
}

func TestEraseDie(t *testing.T) {
	requireT := require.New(t)

	// The chip here is smaller than one die, so die 0 covers it entirely.
	dev, _ := newDevice()

	requireT.NoError(dev.Write(0x2000, []byte{0x00}))
	requireT.NoError(dev.EraseDie(0))

	got, err := dev.Read(0x2000, 1)
	requireT.NoError(err)
	requireT.Equal([]byte{0xFF}, got)

	requireT.Error(dev.EraseDie(-1))
	requireT.Error(dev.EraseDie(types.NumDies))
}

func TestClosedDevice(t *testing.T) {
	requireT := require.New(t)
	assertT := assert.New(t)

	dev, _ := newDevice()
	requireT.NoError(dev.Close())

	_, err := dev.Read(0, 1)
	assertT.ErrorIs(err, ErrClosed)
	assertT.ErrorIs(dev.Write(0, []byte{0x00}), ErrClosed)
	assertT.ErrorIs(dev.Erase(0, Erase4KB), ErrClosed)
	assertT.ErrorIs(dev.EraseDie(0), ErrClosed)

	// Closing twice is fine.
	requireT.NoError(dev.Close())
}

// failingTransport fails every exchange after the first n.
type failingTransport struct {
	t     *memchip.Chip
	limit int
	count int
}

func (f *failingTransport) Exchange(tx []byte) ([]byte, error) {
	if f.count >= f.limit {
		return nil, errors.New("transport gone")
	}
	f.count++
	return f.t.Exchange(tx)
}

func (f *failingTransport) Close() error {
	return f.t.Close()
}

func TestWriteReportsFailedOffset(t *testing.T) {
	requireT := require.New(t)

	chip := memchip.New(chipSize)
	// Enough exchanges for the first page cycle (write enable, program,
	// status polls) but not the second.
	dev := New(&failingTransport{t: chip, limit: 5}, zap.NewNop())

	err := dev.Write(0, make([]byte, 2*types.PageSize))
	requireT.Error(err)
	requireT.Contains(err.Error(), "byte offset 256")
}
