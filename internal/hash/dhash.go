// Package hash computes perceptual fingerprints for frame deduplication.
package hash

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Fingerprint geometry: a difference hash over a 16x16 grid needs a
// 17-wide luminance raster, one bit per horizontal neighbour pair.
const (
	gridSize    = 16
	HashBits    = gridSize * gridSize
	hashByteLen = HashBits / 8
)

// Compute decodes an image and returns its difference-hash fingerprint
// as a hex string. The hash is robust to minor encoding noise, which is
// what makes it usable for near-duplicate detection.
func Compute(imageBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return ComputeImage(img), nil
}

// ComputeImage hashes an already-decoded image.
func ComputeImage(img image.Image) string {
	lum := luminanceGrid(img, gridSize+1, gridSize)

	digest := make([]byte, hashByteLen)
	bit := 0
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			if lum[y][x] < lum[y][x+1] {
				digest[bit/8] |= 1 << uint(7-bit%8)
			}
			bit++
		}
	}
	return hex.EncodeToString(digest)
}

// Similarity converts the Hamming distance between two fingerprints to
// a 0-100 score where 100 means identical structure. Malformed or
// mismatched fingerprints score 0, treating the pair as fully different.
func Similarity(hash1, hash2 string) float64 {
	b1, err1 := hex.DecodeString(hash1)
	b2, err2 := hex.DecodeString(hash2)
	if err1 != nil || err2 != nil || len(b1) != len(b2) || len(b1) == 0 {
		return 0
	}

	distance := 0
	for i := range b1 {
		distance += popcount(b1[i] ^ b2[i])
	}

	totalBits := len(b1) * 8
	return (1 - float64(distance)/float64(totalBits)) * 100
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		b &= b - 1
		n++
	}
	return n
}

// luminanceGrid downsamples the image to a w x h grid of average
// luminance values using box sampling over the source rectangle.
func luminanceGrid(img image.Image, w, h int) [][]float64 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	grid := make([][]float64, h)
	for gy := 0; gy < h; gy++ {
		grid[gy] = make([]float64, w)
		for gx := 0; gx < w; gx++ {
			x0 := bounds.Min.X + gx*srcW/w
			x1 := bounds.Min.X + (gx+1)*srcW/w
			y0 := bounds.Min.Y + gy*srcH/h
			y1 := bounds.Min.Y + (gy+1)*srcH/h
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					// ITU-R BT.601 luma weights on 16-bit channels.
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
				}
			}
			grid[gy][gx] = sum / float64((x1-x0)*(y1-y0))
		}
	}
	return grid
}
