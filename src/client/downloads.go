package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orchestra-mcp/relay/src/types"
)

// DefaultDownloadDir is where received files land unless configured.
const DefaultDownloadDir = "Downloads"

// ErrInvalidName is returned for file names with no usable base element.
var ErrInvalidName = errors.New("invalid file name")

// Downloads writes received files into a directory.
type Downloads struct {
	Dir string
}

// NewDownloads returns a Downloads rooted at dir.
func NewDownloads(dir string) *Downloads {
	if dir == "" {
		dir = DefaultDownloadDir
	}
	return &Downloads{Dir: dir}
}

// EnsureDir creates the download directory if needed.
func (d *Downloads) EnsureDir() error {
	return os.MkdirAll(d.Dir, 0o755)
}

// Save writes f.Data under the base of f.Name, replacing any existing
// file. f.Size is ignored.
func (d *Downloads) Save(f types.File) (string, error) {
	name := filepath.Base(filepath.Clean(string(filepath.Separator) + f.Name))
	if name == string(filepath.Separator) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, f.Name)
	}

	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}
