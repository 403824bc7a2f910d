package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BoundingBox is an image-pixel rectangle with X1 < X2 and Y1 < Y2.
// It is encoded as a four element JSON array.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
}

func BoxFromSlice(coords []float64) (BoundingBox, error) {
	if len(coords) < 4 {
		return BoundingBox{}, fmt.Errorf("bounding box needs 4 coordinates, got %d", len(coords))
	}
	b := BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	if !b.Valid() {
		return BoundingBox{}, fmt.Errorf("degenerate bounding box %v", coords[:4])
	}
	return b, nil
}

func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

func (b BoundingBox) Width() float64  { return b.X2 - b.X1 }
func (b BoundingBox) Height() float64 { return b.Y2 - b.Y1 }

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) < 4 {
		return fmt.Errorf("bounding box needs 4 coordinates, got %d", len(coords))
	}
	*b = BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	return nil
}

// Detection is one labelled object instance inside a Frame. Its position in
// Frame.Detections never changes once the frame is stored.
type Detection struct {
	Label      string      `json:"label"`
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	Color      string      `json:"color,omitempty"`
	Colors     []string    `json:"colors,omitempty"`
}

// ColorSet returns the dominant color followed by the secondary colors,
// lower-cased, skipping empty names.
func (d Detection) ColorSet() []string {
	set := make([]string, 0, len(d.Colors)+1)
	if d.Color != "" {
		set = append(set, strings.ToLower(d.Color))
	}
	for _, c := range d.Colors {
		if c != "" {
			set = append(set, strings.ToLower(c))
		}
	}
	return set
}

// Frame is one sampled instant of a video together with its detections.
type Frame struct {
	ImageRef   string      `json:"image_ref"`
	VideoID    string      `json:"video_id"`
	Timestamp  float64     `json:"timestamp"`
	Detections []Detection `json:"detections"`
	Labels     []string    `json:"labels"`
	PersonID   string      `json:"person_id,omitempty"`

	// Seq is the catalog insertion order. It survives persistence so that
	// equal-score ties rank the same after a restart.
	Seq int64 `json:"-"`
}

// LabelsOf derives the frame-level label list from its detections,
// one entry per detection in order.
func LabelsOf(detections []Detection) []string {
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, d.Label)
	}
	return labels
}

// LabelText is the text registered in the text similarity index.
func (f Frame) LabelText() string {
	return strings.Join(f.Labels, " ")
}

func (f Frame) HasLabel(label string) bool {
	for _, l := range f.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (f Frame) CountLabel(label string) int {
	n := 0
	for _, l := range f.Labels {
		if l == label {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers cannot alias corpus state.
func (f Frame) Clone() Frame {
	c := f
	c.Labels = append([]string(nil), f.Labels...)
	c.Detections = make([]Detection, len(f.Detections))
	for i, d := range f.Detections {
		d.Colors = append([]string(nil), d.Colors...)
		c.Detections[i] = d
	}
	return c
}
