package types

import (
	"bytes"
	"encoding/binary"
)

var be = binary.BigEndian

const (
	// PageSize is the largest unit programmable with a single page program command.
	PageSize = 256

	// DieSize is the byte size of one die of the chip.
	DieSize = 0x04000000 // 64 MiB

	// NumDies is the number of dies addressable on the chip.
	NumDies = 2

	// EntrySize is the byte size of one index entry.
	EntrySize = 8

	// ErasedByte is the value every byte holds after an erase.
	ErasedByte = 0xFF
)

// Address space partitioning. These match the physical chip layout and must
// not change without reformatting already stored data.
const (
	IndexFirst Address = 0x00000000
	IndexLast  Address = 0x00002FFF

	DataFirst Address = 0x00003000
	DataLast  Address = 0x07FFFFFF
)

// MaxEntries is the number of index entries the index region can hold.
const MaxEntries = (int(IndexLast-IndexFirst) + 1) / EntrySize

// Address is a byte offset within the flash address space. Transmitted on
// the wire as 4 bytes, big-endian.
type Address uint32

// Entry locates one blob in the data region. StartAddr is inclusive,
// EndAddr exclusive.
type Entry struct {
	StartAddr Address
	EndAddr   Address
}

// Size returns the byte size of the blob the entry refers to.
func (e Entry) Size() int64 {
	return int64(e.EndAddr) - int64(e.StartAddr)
}

// Marshal returns the 8-byte wire representation of the entry.
func (e Entry) Marshal() [EntrySize]byte {
	var b [EntrySize]byte
	be.PutUint32(b[:4], uint32(e.StartAddr))
	be.PutUint32(b[4:], uint32(e.EndAddr))
	return b
}

// UnmarshalEntry parses the 8-byte wire representation of an entry.
func UnmarshalEntry(b []byte) Entry {
	return Entry{
		StartAddr: Address(be.Uint32(b[:4])),
		EndAddr:   Address(be.Uint32(b[4:EntrySize])),
	}
}

var erasedEntry = bytes.Repeat([]byte{ErasedByte}, EntrySize)

// IsErased reports whether the 8 bytes hold the erased sentinel marking the
// end of the index table.
func IsErased(b []byte) bool {
	return bytes.Equal(b[:EntrySize], erasedEntry)
}
