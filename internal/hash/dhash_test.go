package hash

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func gradientImage(width, height int, shift uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x*255/width) + shift
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestCompute_HashLength(t *testing.T) {
	h, err := Compute(encodeJPEG(t, gradientImage(64, 48, 0)))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// 256 bits as hex.
	if len(h) != HashBits/4 {
		t.Errorf("Expected hash of %d hex chars, got %d", HashBits/4, len(h))
	}
}

func TestCompute_InvalidImage(t *testing.T) {
	if _, err := Compute([]byte("not an image")); err == nil {
		t.Error("Expected error for invalid image bytes")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	data := encodeJPEG(t, gradientImage(64, 48, 0))

	h1, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h2, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if h1 != h2 {
		t.Errorf("Expected identical hashes for identical input, got %s and %s", h1, h2)
	}
}

func TestSimilarity_Identical(t *testing.T) {
	h, err := Compute(encodeJPEG(t, gradientImage(64, 48, 0)))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if sim := Similarity(h, h); sim != 100 {
		t.Errorf("Expected similarity 100 for identical hashes, got %f", sim)
	}
}

func TestSimilarity_RobustToRecompression(t *testing.T) {
	img := gradientImage(64, 48, 0)

	var low bytes.Buffer
	if err := jpeg.Encode(&low, img, &jpeg.Options{Quality: 40}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}

	h1, err := Compute(encodeJPEG(t, img))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h2, err := Compute(low.Bytes())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if sim := Similarity(h1, h2); sim < 95 {
		t.Errorf("Expected recompressed image to stay above 95 similarity, got %f", sim)
	}
}

func TestSimilarity_DifferentScenes(t *testing.T) {
	// Horizontal gradient vs its mirror flips every dhash bit.
	img := gradientImage(64, 48, 0)
	mirror := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			mirror.Set(63-x, y, img.At(x, y))
		}
	}

	h1 := ComputeImage(img)
	h2 := ComputeImage(mirror)

	if sim := Similarity(h1, h2); sim > 50 {
		t.Errorf("Expected mirrored gradient to score low, got %f", sim)
	}
}

func TestSimilarity_MalformedHashes(t *testing.T) {
	h := ComputeImage(gradientImage(64, 48, 0))

	cases := []struct {
		name   string
		h1, h2 string
	}{
		{"empty", "", ""},
		{"not hex", "zz", h},
		{"length mismatch", h[:8], h},
	}

	for _, tc := range cases {
		if sim := Similarity(tc.h1, tc.h2); sim != 0 {
			t.Errorf("%s: expected similarity 0, got %f", tc.name, sim)
		}
	}
}
