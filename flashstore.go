// Package flashstore appends captured blobs to a raw SPI NOR flash chip and
// keeps an on-chip index of what was stored. The flash itself is the only
// durable state: write cursors are recomputed by scanning the index, so the
// store survives process restarts with no separate log.
package flashstore

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore/flash"
	"github.com/lasc-icu/flashstore/index"
	"github.com/lasc-icu/flashstore/types"
)

// Store is the single writer of the flash chip.
type Store struct {
	dev     *flash.Device
	log     *zap.Logger
	cursors index.Cursors
	full    bool
}

// Open scans the index region and returns a store positioned at the next
// free slot. A full index still opens (recovery stays possible) but every
// subsequent Store call is rejected.
func Open(dev *flash.Device, log *zap.Logger) (*Store, error) {
	s := &Store{
		dev: dev,
		log: log,
	}

	cursors, err := index.FindNextSlot(dev)
	switch {
	case errors.Is(err, index.ErrIndexFull):
		log.Error("index region is full, no more blobs can be stored")
		s.full = true
	case err != nil:
		return nil, err
	default:
		s.cursors = cursors
		log.Info("found next free slot",
			zap.Uint32("next_index_addr", uint32(cursors.NextIndex)),
			zap.Uint32("next_data_addr", uint32(cursors.NextData)))
	}

	return s, nil
}

// Cursors returns the write positions the next Store call will use.
func (s *Store) Cursors() index.Cursors {
	return s.cursors
}

// Full reports whether the index region has no free slot left.
func (s *Store) Full() bool {
	return s.full
}

// Store runs one store cycle: validate capacity, write the blob, then commit
// the index entry. The data is written strictly before its entry, so a crash
// in between leaves the table terminating at a still-erased slot and the
// orphaned bytes are never referenced. No entry is ever written for a blob
// whose data write failed.
func (s *Store) Store(blob []byte) error {
	if s.full {
		return errors.WithStack(index.ErrIndexFull)
	}
	if len(blob) == 0 {
		return errors.New("blob is empty")
	}

	if err := index.ValidateCapacity(s.cursors, len(blob)); err != nil {
		return err
	}

	s.log.Info("writing blob data",
		zap.Int("size", len(blob)),
		zap.Uint32("data_addr", uint32(s.cursors.NextData)))
	if err := s.dev.Write(s.cursors.NextData, blob); err != nil {
		return errors.Wrap(err, "writing blob data")
	}

	entry := types.Entry{
		StartAddr: s.cursors.NextData,
		EndAddr:   s.cursors.NextData + types.Address(len(blob)),
	}
	entryBytes := entry.Marshal()

	s.log.Info("writing index entry",
		zap.Uint32("index_addr", uint32(s.cursors.NextIndex)),
		zap.Uint32("start_addr", uint32(entry.StartAddr)),
		zap.Uint32("end_addr", uint32(entry.EndAddr)))
	if err := s.dev.Write(s.cursors.NextIndex, entryBytes[:]); err != nil {
		return errors.Wrap(err, "writing index entry")
	}

	s.cursors = index.Cursors{
		NextIndex: s.cursors.NextIndex + types.EntrySize,
		NextData:  entry.EndAddr,
	}
	if s.cursors.NextIndex > types.IndexLast {
		s.full = true
	}
	return nil
}

// Summary returns every valid index entry in order.
func (s *Store) Summary() ([]types.Entry, error) {
	var entries []types.Entry
	err := index.Walk(s.dev, func(n int, addr types.Address, e types.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
