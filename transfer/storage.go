package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/limits"
)

// ErrDirectoryTraversal indicates a received file name that tries to escape
// the download directory.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// Storage opens the byte streams transfers read from and write to.
type Storage interface {
	// Open opens path for reading an outgoing file.
	Open(path string) (io.ReadCloser, error)
	// Create creates the destination of an incoming file named by the peer.
	Create(name string) (io.WriteCloser, error)
}

// DiskStorage stores incoming files in Dir. Outgoing paths are used as given.
type DiskStorage struct {
	Dir string
}

// Open implements Storage.
func (d DiskStorage) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Create implements Storage. Only the base name of the peer-supplied name is
// used.
func (d DiskStorage) Create(name string) (io.WriteCloser, error) {
	base, err := SafeName(name)
	if err != nil {
		return nil, err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, base)

	logrus.WithFields(logrus.Fields{
		"function": "DiskStorage.Create",
		"path":     path,
	}).Debug("Creating incoming file")

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

// SafeName reduces a peer-supplied file name to a single path element.
func SafeName(name string) (string, error) {
	if err := limits.ValidateFileName(name); err != nil {
		return "", err
	}
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	base := filepath.Base(cleaned)
	if base == ".." || base == "." || base == string(filepath.Separator) {
		return "", ErrDirectoryTraversal
	}
	return base, nil
}
