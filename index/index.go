// Package index interprets the reserved index region as an ordered,
// append-only table of fixed-size entries and locates the next free slot.
package index

import (
	"github.com/pkg/errors"

	"github.com/lasc-icu/flashstore/types"
)

// Capacity faults. Terminal for writes, distinct from hardware faults: they
// require erasing or replacing the media, not a retry.
var (
	ErrIndexFull = errors.New("index region is full")
	ErrDataFull  = errors.New("data region is full")
)

// Reader reads raw bytes from the flash address space.
type Reader interface {
	Read(addr types.Address, length int) ([]byte, error)
}

// Cursors are the derived write positions for the next store cycle. They are
// never persisted; FindNextSlot recomputes them from flash contents.
type Cursors struct {
	NextIndex types.Address
	NextData  types.Address
}

// FindNextSlot scans the index region from the start, advancing the data
// cursor past every valid entry, and returns the first erased slot. Returns
// ErrIndexFull if no slot in the region is erased.
func FindNextSlot(r Reader) (Cursors, error) {
	current := types.IndexFirst
	lastDataEnd := types.DataFirst

	for current <= types.IndexLast {
		entry, err := r.Read(current, types.EntrySize)
		if err != nil {
			return Cursors{}, errors.Wrapf(err, "scanning index at 0x%08X", current)
		}

		if types.IsErased(entry) {
			return Cursors{
				NextIndex: current,
				NextData:  lastDataEnd,
			}, nil
		}

		lastDataEnd = types.UnmarshalEntry(entry).EndAddr
		current += types.EntrySize
	}

	return Cursors{}, errors.WithStack(ErrIndexFull)
}

// ValidateCapacity rejects a prospective write of size bytes before anything
// touches the flash: a partial data write followed by a rejected index
// commit would break the contiguity of the table.
func ValidateCapacity(c Cursors, size int) error {
	if uint64(c.NextData)+uint64(size) > uint64(types.DataLast) {
		return errors.Wrapf(ErrDataFull,
			"required: %d bytes, available: %d", size, uint64(types.DataLast)-uint64(c.NextData))
	}
	if c.NextIndex > types.IndexLast {
		return errors.WithStack(ErrIndexFull)
	}
	return nil
}

// Walk calls fn for every valid entry in order, stopping at the first erased
// slot or the end of the region. n starts at 0. It is the single scanner
// shared by the store path and the recovery tool.
func Walk(r Reader, fn func(n int, addr types.Address, e types.Entry) error) error {
	current := types.IndexFirst

	for n := 0; current <= types.IndexLast; n++ {
		entry, err := r.Read(current, types.EntrySize)
		if err != nil {
			return errors.Wrapf(err, "scanning index at 0x%08X", current)
		}
		if types.IsErased(entry) {
			return nil
		}

		if err := fn(n, current, types.UnmarshalEntry(entry)); err != nil {
			return err
		}
		current += types.EntrySize
	}

	return nil
}
