package preprocessing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ImageProcessor decodes compressed images into CHW float pixels on the
// 0..255 scale raw records use. Scratch buffers are reused between calls.
type ImageProcessor struct {
	mu              sync.Mutex
	tempImageBuffer *image.RGBA
	targetHeight    int
	targetWidth     int
}

// NewImageProcessor creates a processor that resizes to height×width. A
// zero size keeps the decoded image's own dimensions.
func NewImageProcessor(height, width int) *ImageProcessor {
	return &ImageProcessor{
		targetHeight: height,
		targetWidth:  width,
	}
}

// ProcessedImage is a decoded image in CHW layout
type ProcessedImage struct {
	Data     []float64
	Width    int
	Height   int
	Channels int
}

// DecodeBytes decodes an in-memory JPEG, PNG or BMP image
func (p *ImageProcessor) DecodeBytes(data []byte) (*ProcessedImage, error) {
	return p.DecodeAndPreprocess(bytes.NewReader(data))
}

// DecodeAndPreprocess decodes an image and returns RGB data in CHW format
// (channels, height, width) with values in [0, 255].
func (p *ImageProcessor) DecodeAndPreprocess(reader io.Reader) (*ProcessedImage, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	height, width := p.targetHeight, p.targetWidth
	if height <= 0 || width <= 0 {
		height, width = bounds.Dy(), bounds.Dx()
	}
	if height == 0 || width == 0 {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Reuse image buffer
	if p.tempImageBuffer == nil || p.tempImageBuffer.Bounds().Dx() != width || p.tempImageBuffer.Bounds().Dy() != height {
		p.tempImageBuffer = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	targetImg := p.tempImageBuffer

	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(targetImg, targetImg.Bounds(), img, bounds.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(targetImg, targetImg.Bounds(), img, bounds, draw.Src, nil)
	}

	plane := height * width
	data := make([]float64, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := targetImg.PixOffset(x, y)
			idx := y*width + x
			data[idx] = float64(targetImg.Pix[off])           // R channel
			data[plane+idx] = float64(targetImg.Pix[off+1])   // G channel
			data[2*plane+idx] = float64(targetImg.Pix[off+2]) // B channel
		}
	}

	return &ProcessedImage{
		Data:     data,
		Width:    width,
		Height:   height,
		Channels: 3,
	}, nil
}
