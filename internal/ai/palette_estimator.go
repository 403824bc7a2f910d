package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/kdimtricp/camsearch/internal/models"
)

const (
	UnknownColor = "unknown"

	paletteMaxSide   = 100
	dominantMinShare = 0.15
	secondaryShare   = 0.10
	maxSecondary     = 2
)

// PaletteEstimator names the colors inside each detection box by bucketing
// pixels into coarse HSV ranges.
type PaletteEstimator struct{}

func NewPaletteEstimator() *PaletteEstimator { return &PaletteEstimator{} }

// Annotate fills Color and Colors for detections that carry no color yet.
// Detections with a box outside the image get UnknownColor.
func (p PaletteEstimator) Annotate(ctx context.Context, frame []byte, detections []models.Detection) error {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	for i := range detections {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := &detections[i]
		if d.Color != "" || len(d.Colors) > 0 {
			continue
		}
		d.Color, d.Colors = p.estimate(img, d.Box)
	}
	return nil
}

type colorShare struct {
	name  string
	share float64
}

func (PaletteEstimator) estimate(img image.Image, box models.BoundingBox) (string, []string) {
	r := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(img.Bounds())
	if r.Empty() {
		return UnknownColor, nil
	}

	step := 1
	if side := max(r.Dx(), r.Dy()); side > paletteMaxSide {
		step = (side + paletteMaxSide - 1) / paletteMaxSide
	}

	counts := make(map[string]int)
	total := 0
	for y := r.Min.Y; y < r.Max.Y; y += step {
		for x := r.Min.X; x < r.Max.X; x += step {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			counts[colorName(toHSV(cr>>8, cg>>8, cb>>8))]++
			total++
		}
	}

	shares := make([]colorShare, 0, len(counts))
	for name, n := range counts {
		shares = append(shares, colorShare{name: name, share: float64(n) / float64(total)})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].share != shares[j].share {
			return shares[i].share > shares[j].share
		}
		return shares[i].name < shares[j].name
	})

	if shares[0].share <= dominantMinShare {
		return UnknownColor, nil
	}
	var secondary []string
	for _, s := range shares[1:] {
		if s.share < secondaryShare || len(secondary) == maxSecondary {
			break
		}
		secondary = append(secondary, s.name)
	}
	return shares[0].name, secondary
}

type hsv struct {
	h    float64 // 0..180
	s, v float64 // 0..255
}

func toHSV(r8, g8, b8 uint32) hsv {
	r, g, b := float64(r8), float64(g8), float64(b8)
	hi := max(r, g, b)
	lo := min(r, g, b)
	delta := hi - lo

	var h float64
	switch {
	case delta == 0:
		h = 0
	case hi == r:
		h = 60 * (g - b) / delta
	case hi == g:
		h = 60*(b-r)/delta + 120
	default:
		h = 60*(r-g)/delta + 240
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if hi > 0 {
		s = delta / hi * 255
	}
	return hsv{h: h / 2, s: s, v: hi}
}

func colorName(c hsv) string {
	switch {
	case c.v < 40:
		return "black"
	case c.s < 50 && c.v >= 180:
		return "white"
	case c.s < 50:
		return "gray"
	case c.h >= 10 && c.h < 25 && c.s <= 200 && c.v <= 150:
		return "brown"
	}
	switch {
	case c.h < 10 || c.h >= 170:
		return "red"
	case c.h < 25:
		return "orange"
	case c.h < 35:
		return "yellow"
	case c.h < 85:
		return "green"
	case c.h < 95:
		return "cyan"
	case c.h < 130:
		return "blue"
	case c.h < 155:
		return "purple"
	default:
		return "pink"
	}
}
