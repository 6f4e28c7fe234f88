package preprocessing

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tsawler/go-landscape/vision/blob"
)

// createMockPNGImage creates a small solid-colour PNG for exact pixel checks
func createMockPNGImage(t *testing.T, width, height int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// createMockJPEGImage creates a gradient JPEG image for testing
func createMockJPEGImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			factor := float64(x+y) / float64(width+height)
			img.Set(x, y, color.RGBA{uint8(255 * factor), uint8(128 * factor), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNGKeepsPixelScale(t *testing.T) {
	processor := NewImageProcessor(0, 0)
	result, err := processor.DecodeBytes(createMockPNGImage(t, 3, 2, color.RGBA{200, 100, 50, 255}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Width != 3 || result.Height != 2 || result.Channels != 3 {
		t.Fatalf("Unexpected geometry %dx%dx%d", result.Channels, result.Height, result.Width)
	}
	if len(result.Data) != 18 {
		t.Fatalf("Expected 18 values, got %d", len(result.Data))
	}

	// CHW: six red values, then six green, then six blue
	for i, want := range []float64{200, 100, 50} {
		for j := 0; j < 6; j++ {
			if got := result.Data[i*6+j]; got != want {
				t.Errorf("channel %d pixel %d: expected %v, got %v", i, j, want, got)
			}
		}
	}
}

func TestDecodeJPEGResizes(t *testing.T) {
	processor := NewImageProcessor(32, 32)
	result, err := processor.DecodeBytes(createMockJPEGImage(t, 100, 80))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Width != 32 || result.Height != 32 {
		t.Errorf("Expected 32x32, got %dx%d", result.Width, result.Height)
	}
	if len(result.Data) != 3*32*32 {
		t.Fatalf("Expected %d values, got %d", 3*32*32, len(result.Data))
	}
	for i, v := range result.Data {
		if v < 0 || v > 255 {
			t.Fatalf("Value at index %d (%f) not in range [0, 255]", i, v)
		}
	}
}

func TestDecodeInvalidData(t *testing.T) {
	processor := NewImageProcessor(8, 8)
	if _, err := processor.DecodeBytes([]byte("not an image")); err == nil {
		t.Error("Expected error for invalid image data")
	}
	if _, err := processor.DecodeBytes(nil); err == nil {
		t.Error("Expected error for empty data")
	}
}

func TestImageProcessorConcurrency(t *testing.T) {
	processor := NewImageProcessor(16, 16)
	data := createMockJPEGImage(t, 40, 40)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := processor.DecodeBytes(data)
			if err == nil && len(result.Data) != 3*16*16 {
				t.Errorf("Unexpected data length %d", len(result.Data))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent decode failed: %v", err)
		}
	}
}

func TestDatumToImage(t *testing.T) {
	t.Run("RawBytes", func(t *testing.T) {
		d := &blob.Datum{Channels: 1, Height: 1, Width: 3, Data: []byte{0, 128, 255}}
		img, err := DatumToImage(d, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		for i, want := range []float64{0, 128, 255} {
			if img[i] != want {
				t.Errorf("pixel %d: expected %v, got %v", i, want, img[i])
			}
		}
	})

	t.Run("FloatData", func(t *testing.T) {
		d := &blob.Datum{Channels: 1, Height: 1, Width: 2, FloatData: []float32{-0.5, 3}}
		img, err := DatumToImage(d, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if img[0] != -0.5 || img[1] != 3 {
			t.Errorf("Unexpected values %v", img)
		}
	})

	t.Run("GeometryMismatch", func(t *testing.T) {
		d := &blob.Datum{Channels: 3, Height: 2, Width: 2, Data: []byte{1, 2, 3}}
		if _, err := DatumToImage(d, nil); err == nil {
			t.Error("Expected geometry mismatch error")
		}
	})

	t.Run("EncodedNeedsProcessor", func(t *testing.T) {
		d := &blob.Datum{Data: createMockPNGImage(t, 2, 2, color.RGBA{1, 2, 3, 255}), Encoded: true}
		if _, err := DatumToImage(d, nil); err == nil {
			t.Error("Expected error without processor")
		}
		img, err := DatumToImage(d, NewImageProcessor(0, 0))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(img) != 12 || img[0] != 1 || img[4] != 2 || img[8] != 3 {
			t.Errorf("Unexpected decoded values %v", img)
		}
	})
}

func TestDecodeBatchPreservesOrder(t *testing.T) {
	var records [][]byte
	for i := 0; i < 20; i++ {
		d := &blob.Datum{Channels: 1, Height: 1, Width: 1, Data: []byte{byte(i)}, Label: int32(i % 3)}
		records = append(records, d.Marshal())
	}

	images, labels, err := DecodeBatch(context.Background(), records, nil, 4)
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	for i := range records {
		if images[i][0] != float64(i) || labels[i] != i%3 {
			t.Errorf("record %d: got image %v label %d", i, images[i], labels[i])
		}
	}

	records = append(records, []byte{0xff})
	if _, _, err := DecodeBatch(context.Background(), records, nil, 4); err == nil {
		t.Error("Expected error for corrupt record")
	}
}

func TestMeanImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mean.binaryproto")
	mean := &MeanImage{Channels: 1, Height: 2, Width: 2, Data: []float64{1, 2, 3, 4}}
	if err := mean.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadMeanImage(path, []int{1, 2, 2})
	if err != nil {
		t.Fatalf("LoadMeanImage failed: %v", err)
	}
	img := []float64{10, 10, 10, 10}
	if err := loaded.Subtract(img); err != nil {
		t.Fatalf("Subtract failed: %v", err)
	}
	for i, want := range []float64{9, 8, 7, 6} {
		if img[i] != want {
			t.Errorf("pixel %d: expected %v, got %v", i, want, img[i])
		}
	}

	if err := loaded.Subtract([]float64{1}); err == nil {
		t.Error("Expected size mismatch error")
	}
	if _, err := LoadMeanImage(path, []int{3, 32, 32}); err == nil {
		t.Error("Expected shape mismatch error")
	}
	if _, err := LoadMeanImage(filepath.Join(t.TempDir(), "missing"), []int{1, 2, 2}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestMeanAccumulator(t *testing.T) {
	acc := NewMeanAccumulator([]int{1, 1, 2})
	if _, err := acc.Mean(); err == nil {
		t.Error("Expected error for empty accumulator")
	}
	acc.Add([]float64{1, 10})
	acc.Add([]float64{3, 20})
	if err := acc.Add([]float64{1}); err == nil {
		t.Error("Expected size mismatch error")
	}

	mean, err := acc.Mean()
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if mean.Data[0] != 2 || mean.Data[1] != 15 {
		t.Errorf("Unexpected mean %v", mean.Data)
	}
}
