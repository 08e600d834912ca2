package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCapture(t *testing.T) {
	requireT := require.New(t)

	base := t.TempDir()
	contents := map[string][]byte{}
	for i, class := range Classifications {
		dir := filepath.Join(base, class)
		requireT.NoError(os.MkdirAll(dir, 0o755))

		data := []byte{byte(i), 0x01, 0x02}
		requireT.NoError(os.WriteFile(filepath.Join(dir, "a.jpg"), data, 0o644))
		contents[string(data)] = data

		// Non-image files are ignored.
		requireT.NoError(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	}

	src := NewDirSource(base, zap.NewNop())
	for i := 0; i < 10; i++ {
		blob, err := src.Capture()
		requireT.NoError(err)
		requireT.Contains(contents, string(blob))
	}
}

func TestCaptureMissingBaseDir(t *testing.T) {
	requireT := require.New(t)

	src := NewDirSource(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	_, err := src.Capture()
	requireT.Error(err)
}

func TestCaptureEmptyClassDir(t *testing.T) {
	requireT := require.New(t)

	base := t.TempDir()
	for _, class := range Classifications {
		requireT.NoError(os.MkdirAll(filepath.Join(base, class), 0o755))
	}

	src := NewDirSource(base, zap.NewNop())
	_, err := src.Capture()
	requireT.Error(err)
}
