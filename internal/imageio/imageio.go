// Package imageio reads image headers and knows which file extensions the
// stores accept. No pixel data is ever decoded; only the encoded header.
package imageio

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"

	// Decoders for the supported upload formats. Dimension extraction goes
	// through image.DecodeConfig, which only needs a registered decoder.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/jviitala/labelkit/internal/errors"
)

// supportedExtensions is the allow-list applied to image listings and
// project statistics. Matching is case-insensitive.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// IsImageFile reports whether the filename carries a supported image extension.
func IsImageFile(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DecodeInfo validates that content is a decodable image and returns its
// pixel dimensions read from the encoded header.
func DecodeInfo(content []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0, errors.New(errors.ErrInvalidImage).
			Component("imageio").
			Category(errors.CategoryImageDecode).
			Context("detail", err.Error()).
			Build()
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeFileInfo reads just enough of the file at path to extract dimensions.
func DecodeFileInfo(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.New(err).
			Component("imageio").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.New(errors.ErrInvalidImage).
			Component("imageio").
			Category(errors.CategoryImageDecode).
			Context("detail", err.Error()).
			Build()
	}
	return cfg.Width, cfg.Height, nil
}
