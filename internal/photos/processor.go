// Package photos turns raw upload bytes into stored photo artifacts: the
// validated original plus a bounded JPEG thumbnail, with pixel dimensions
// and a SHA-256 checksum extracted along the way. It also owns the object
// key layout so uploads, deletes, and URL signing agree on where a photo
// and its derivatives live.
package photos

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/oneira/oneira/pkg/checksum"
)

// DefaultThumbnailPx bounds thumbnail edges when the config leaves the size unset.
const DefaultThumbnailPx = 512

// thumbnailJPEGQuality trades file size against artifacts for gallery-sized previews.
const thumbnailJPEGQuality = 85

// Processed holds everything extracted from one uploaded image.
type Processed struct {
	Width     int
	Height    int
	Checksum  string // hex-encoded SHA-256 of the original bytes
	Thumbnail []byte // JPEG fitting within the configured bounding box
}

// Processor decodes uploads and renders thumbnails.
type Processor struct {
	thumbnailPx int
}

// NewProcessor creates a processor with the given thumbnail bounding-box edge.
func NewProcessor(thumbnailPx int) *Processor {
	if thumbnailPx <= 0 {
		thumbnailPx = DefaultThumbnailPx
	}
	return &Processor{thumbnailPx: thumbnailPx}
}

// Process decodes data, computes its checksum, and renders a thumbnail that
// fits within the bounding box without upscaling. Content-type validation
// happens before this point; a decode failure here means the bytes are
// corrupt despite a plausible magic number.
func (p *Processor) Process(data []byte) (*Processed, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	sum := checksum.SumBytes(data)

	bounds := img.Bounds()
	thumb := imaging.Fit(img, p.thumbnailPx, p.thumbnailPx, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return &Processed{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Checksum:  sum,
		Thumbnail: buf.Bytes(),
	}, nil
}
