// Package recovery reconstructs every stored blob from the flash index into
// files on disk. It is a pure reader meant for offline forensics; it never
// touches the live write cursors.
package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lasc-icu/flashstore/index"
	"github.com/lasc-icu/flashstore/spi"
	"github.com/lasc-icu/flashstore/types"
)

// ReadChunkSize is the most blob bytes one read command can carry: the
// transport transfer limit minus the opcode and address bytes.
const ReadChunkSize = spi.MaxTransfer - 5

// DefaultExtension is used when the configuration does not name one.
const DefaultExtension = ".jpg"

// Engine recovers blobs from an open flash device.
type Engine struct {
	dev index.Reader
	log *zap.Logger
	ext string
}

// New returns an engine writing files with the given extension.
func New(dev index.Reader, ext string, log *zap.Logger) *Engine {
	if ext == "" {
		ext = DefaultExtension
	}
	return &Engine{
		dev: dev,
		log: log,
		ext: ext,
	}
}

// ScanAndRecover walks the index and writes one numbered file per valid
// entry into dir. A corrupt or unreadable entry is logged and skipped so it
// cannot hide the rest of the catalog. Returns how many blobs were recovered
// and how many entries were found.
func (e *Engine) ScanAndRecover(dir string) (recovered, found int, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, errors.Wrapf(err, "creating recovery directory %q", dir)
	}

	err = index.Walk(e.dev, func(n int, addr types.Address, entry types.Entry) error {
		found++
		if err := e.recoverOne(found, entry, dir); err != nil {
			e.log.Error("recovery failed, skipping entry",
				zap.Int("image", found),
				zap.Uint32("index_addr", uint32(addr)),
				zap.Error(err))
			return nil
		}
		recovered++
		return nil
	})
	if err != nil {
		return recovered, found, err
	}

	e.log.Info("recovery complete",
		zap.Int("found", found),
		zap.Int("recovered", recovered),
		zap.Int("failed", found-recovered))
	return recovered, found, nil
}

// recoverOne reads the blob in bounded chunks, verifies the exact length and
// writes it to a numbered file. A short read fails the entry rather than
// producing a truncated file.
func (e *Engine) recoverOne(num int, entry types.Entry, dir string) error {
	size := entry.Size()
	if size <= 0 {
		return errors.Errorf("corrupt entry: non-positive size %d (0x%08X..0x%08X)",
			size, uint32(entry.StartAddr), uint32(entry.EndAddr))
	}

	data := make([]byte, 0, size)
	for int64(len(data)) < size {
		toRead := size - int64(len(data))
		if toRead > ReadChunkSize {
			toRead = ReadChunkSize
		}
		addr := entry.StartAddr + types.Address(len(data))

		chunk, err := e.dev.Read(addr, int(toRead))
		if err != nil {
			return errors.Wrapf(err, "reading chunk at 0x%08X", uint32(addr))
		}
		if len(chunk) == 0 {
			return errors.Errorf("empty chunk at 0x%08X", uint32(addr))
		}
		data = append(data, chunk...)
	}

	if int64(len(data)) != size {
		return errors.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	path := filepath.Join(dir, fmt.Sprintf("image_%d%s", num, e.ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}

	e.log.Info("recovered image",
		zap.Int("image", num),
		zap.String("path", path),
		zap.Int64("size", size),
		zap.String("xxhash64", fmt.Sprintf("%016x", xxhash.Sum64(data))))
	return nil
}
