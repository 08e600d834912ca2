// Package capture supplies image blobs to store. The real camera and
// classifier live outside this process; DirSource simulates them by picking
// files from classification directories.
package capture

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Source produces one captured blob per call. Returning an error halts the
// current store cycle; the caller retries on the next period.
type Source interface {
	Capture() ([]byte, error)
}

// Classifications the simulated classifier can produce; one subdirectory per
// class under the source base directory.
var Classifications = []string{"Forests", "Plains", "Sky"}

var validExtensions = []string{".jpg", ".jpeg", ".png"}

// DirSource simulates capture and classification by randomly selecting an
// image file from a classification subdirectory.
type DirSource struct {
	baseDir string
	rnd     *rand.Rand
	log     *zap.Logger
}

// NewDirSource returns a source reading from baseDir.
func NewDirSource(baseDir string, log *zap.Logger) *DirSource {
	return &DirSource{
		baseDir: baseDir,
		rnd:     rand.New(rand.NewSource(rand.Int63())),
		log:     log,
	}
}

// Capture picks a random class and a random image inside it.
func (s *DirSource) Capture() ([]byte, error) {
	if _, err := os.Stat(s.baseDir); err != nil {
		return nil, errors.Wrapf(err, "image directory %q not found, expected subdirectories %v",
			s.baseDir, Classifications)
	}

	class := Classifications[s.rnd.Intn(len(Classifications))]
	classDir := filepath.Join(s.baseDir, class)

	images, err := listImages(classDir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.Errorf("no images found in %q", classDir)
	}

	name := images[s.rnd.Intn(len(images))]
	path := filepath.Join(classDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %q", path)
	}

	s.log.Info("simulated capture",
		zap.String("classification", class),
		zap.String("image", name),
		zap.Int("size", len(data)))
	return data, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "classification directory %q not found", dir)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, valid := range validExtensions {
			if ext == valid {
				images = append(images, e.Name())
				break
			}
		}
	}
	return images, nil
}
