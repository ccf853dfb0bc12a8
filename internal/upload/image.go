package upload

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/webp"
)

// checkImage decodes only the image header and enforces the pixel budget,
// so oversized images are refused before anything decodes their pixels.
func checkImage(r io.Reader, maxPixels int64) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, ErrInvalidImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return 0, 0, ErrImageTooLarge
	}
	return cfg.Width, cfg.Height, nil
}
