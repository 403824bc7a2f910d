package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
)

const histogramBins = 8

// HistogramEncoder embeds a person crop as its normalized RGB color
// histogram. It is a stand-in for a re-identification model and only
// separates people by clothing color.
type HistogramEncoder struct{}

func NewHistogramEncoder() *HistogramEncoder { return &HistogramEncoder{} }

func (HistogramEncoder) Dimensions() int { return histogramBins * histogramBins * histogramBins }

func (e HistogramEncoder) EncodeCrop(_ context.Context, crop []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(crop))
	if err != nil {
		return nil, fmt.Errorf("decoding crop: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty crop")
	}

	hist := make([]float64, e.Dimensions())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			idx := bin(r)*histogramBins*histogramBins + bin(g)*histogramBins + bin(bl)
			hist[idx]++
		}
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	scale := 1 / math.Sqrt(norm)
	out := make([]float32, len(hist))
	for i, v := range hist {
		out[i] = float32(v * scale)
	}
	return out, nil
}

// bin maps a 16-bit color channel to one of histogramBins buckets.
func bin(c uint32) int {
	return int(c>>8) * histogramBins / 256
}
