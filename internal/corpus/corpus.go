// Package corpus holds the append-only collection of ingested frames.
package corpus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kdimtricp/camsearch/internal/models"
)

var (
	ErrDuplicateFrame = errors.New("frame already exists")
	ErrNotFound       = errors.New("not found")
	ErrInvalidFrame   = errors.New("invalid frame")
)

type frameKey struct {
	videoID   string
	timestamp float64
}

// Corpus is safe for concurrent use. Every accessor returns deep copies.
type Corpus struct {
	mu     sync.RWMutex
	frames []models.Frame
	byRef  map[string]int
	byKey  map[frameKey]string
}

func New() *Corpus {
	return &Corpus{
		byRef: make(map[string]int),
		byKey: make(map[frameKey]string),
	}
}

// Add appends a frame. The image reference is unique across the corpus and
// the timestamp is unique within the frame's video.
func (c *Corpus) Add(f models.Frame) error {
	if f.ImageRef == "" {
		return fmt.Errorf("%w: empty image reference", ErrInvalidFrame)
	}
	if f.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp %v", ErrInvalidFrame, f.Timestamp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byRef[f.ImageRef]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFrame, f.ImageRef)
	}
	key := frameKey{videoID: f.VideoID, timestamp: f.Timestamp}
	if ref, ok := c.byKey[key]; ok {
		return fmt.Errorf("%w: video %s already has frame %s at %.3fs", ErrDuplicateFrame, f.VideoID, ref, f.Timestamp)
	}

	c.byRef[f.ImageRef] = len(c.frames)
	c.byKey[key] = f.ImageRef
	c.frames = append(c.frames, f.Clone())
	return nil
}

// Contains reports whether the image reference is stored.
func (c *Corpus) Contains(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byRef[ref]
	return ok
}

// CanAdd reports whether Add would accept the frame's keys right now.
func (c *Corpus) CanAdd(f models.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.byRef[f.ImageRef]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFrame, f.ImageRef)
	}
	if _, ok := c.byKey[frameKey{videoID: f.VideoID, timestamp: f.Timestamp}]; ok {
		return fmt.Errorf("%w: video %s at %.3fs", ErrDuplicateFrame, f.VideoID, f.Timestamp)
	}
	return nil
}

func (c *Corpus) Get(ref string) (models.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byRef[ref]
	if !ok {
		return models.Frame{}, false
	}
	return c.frames[i].Clone(), true
}

func (c *Corpus) All() []models.Frame {
	return c.filter(func(models.Frame) bool { return true })
}

// InRange returns frames with start <= timestamp <= end.
func (c *Corpus) InRange(start, end float64) []models.Frame {
	w := models.TimeWindow{Start: start, End: end}
	return c.filter(func(f models.Frame) bool { return w.Contains(f.Timestamp) })
}

// ByVideo returns the video's frames in timestamp order.
func (c *Corpus) ByVideo(videoID string) []models.Frame {
	frames := c.filter(func(f models.Frame) bool { return f.VideoID == videoID })
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp < frames[j].Timestamp
	})
	return frames
}

// WithLabel returns frames whose label list contains label exactly.
func (c *Corpus) WithLabel(label string) []models.Frame {
	return c.filter(func(f models.Frame) bool { return f.HasLabel(label) })
}

func (c *Corpus) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// RemoveVideo deletes every frame of the video and returns their image
// references. ErrNotFound is returned when the video has no frames.
func (c *Corpus) RemoveVideo(videoID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.frames[:0:0]
	var removed []string
	for _, f := range c.frames {
		if f.VideoID == videoID {
			removed = append(removed, f.ImageRef)
			continue
		}
		kept = append(kept, f)
	}
	if len(removed) == 0 {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	c.reset(kept)
	return removed, nil
}

func (c *Corpus) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(nil)
}

// AnnotateColors sets the color attributes of one detection.
func (c *Corpus) AnnotateColors(ref string, index int, color string, colors []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.byRef[ref]
	if !ok {
		return fmt.Errorf("frame %s: %w", ref, ErrNotFound)
	}
	dets := c.frames[i].Detections
	if index < 0 || index >= len(dets) {
		return fmt.Errorf("frame %s detection %d: %w", ref, index, ErrNotFound)
	}
	dets[index].Color = color
	dets[index].Colors = append([]string(nil), colors...)
	return nil
}

func (c *Corpus) filter(keep func(models.Frame) bool) []models.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Frame, 0)
	for _, f := range c.frames {
		if keep(f) {
			out = append(out, f.Clone())
		}
	}
	return out
}

func (c *Corpus) reset(frames []models.Frame) {
	c.frames = frames
	c.byRef = make(map[string]int, len(frames))
	c.byKey = make(map[frameKey]string, len(frames))
	for i, f := range frames {
		c.byRef[f.ImageRef] = i
		c.byKey[frameKey{videoID: f.VideoID, timestamp: f.Timestamp}] = f.ImageRef
	}
}
