package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrNoImage is returned when an image reference cannot be resolved.
var ErrNoImage = errors.New("export: image not available")

// Images produces PNG thumbnails for image references.
type Images interface {
	Thumbnail(ref string, px int) ([]byte, error)
}

// DirImages resolves image references against a local directory. Only the
// base name of a reference is used, so URLs and nested paths map onto files
// directly inside Root.
type DirImages struct {
	Root string
}

// Thumbnail implements Images.
func (d DirImages) Thumbnail(ref string, px int) ([]byte, error) {
	name := filepath.Base(strings.TrimSpace(ref))
	if d.Root == "" || name == "" || name == "." || name == string(filepath.Separator) {
		return nil, ErrNoImage
	}
	path := filepath.Join(d.Root, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, name)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", name, err)
	}
	if px <= 0 {
		px = 64
	}
	thumb := imaging.Fit(img, px, px, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
