// Package search implements hybrid retrieval over the frame corpus: label
// text similarity and visual similarity are fused, then filtered and
// boosted by the structured predicate parsed from the query.
package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/corpus"
	"github.com/kdimtricp/camsearch/internal/models"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

// Catalog owns the corpus and both indices. Appends and removals take the
// write lock across all three, queries take the read lock, so a query sees
// every frame with all of its index entries or none of them.
type Catalog struct {
	mu     sync.RWMutex
	frames *corpus.Corpus
	text   vectorindex.TextSearcher
	visual vectorindex.VisualSearcher
	seq    int64
	log    logrus.FieldLogger
}

type Stats struct {
	VisualAvailable bool   `json:"clip_available"`
	TextIndexed     int    `json:"text_indexed"`
	VisualIndexed   int    `json:"clip_indexed"`
	Mode            string `json:"hybrid_search"`
}

func NewCatalog(text vectorindex.TextSearcher, visual vectorindex.VisualSearcher, log logrus.FieldLogger) *Catalog {
	if visual == nil {
		visual = vectorindex.NewVisualIndex(nil)
	}
	return &Catalog{
		frames: corpus.New(),
		text:   text,
		visual: visual,
		log:    log,
	}
}

// Corpus exposes the read accessors of the underlying frame store.
func (c *Catalog) Corpus() *corpus.Corpus { return c.frames }

// Pending is a frame whose index vectors are computed but which is not yet
// visible to queries.
type Pending struct {
	frame     models.Frame
	textVec   []float32
	visualVec []float32
}

func (p *Pending) Frame() models.Frame { return p.frame }

// Prepare checks the frame's keys and computes its vectors without taking
// the write lock. A text vector is required; a failed image encoding only
// skips the visual entry.
func (c *Catalog) Prepare(ctx context.Context, frame models.Frame, image []byte) (*Pending, error) {
	if err := c.frames.CanAdd(frame); err != nil {
		return nil, err
	}

	textVec, err := c.text.Encode(ctx, frame.LabelText())
	if err != nil {
		return nil, fmt.Errorf("indexing frame %s: %w", frame.ImageRef, err)
	}

	var visualVec []float32
	if c.visual.Available() && len(image) > 0 {
		visualVec, err = c.visual.EncodeImage(ctx, image)
		if err != nil {
			c.log.WithError(err).WithField("image_ref", frame.ImageRef).Warn("skipping visual index entry")
			visualVec = nil
		}
	}
	return &Pending{frame: frame.Clone(), textVec: textVec, visualVec: visualVec}, nil
}

// Commit makes a prepared frame visible. The keys are checked again under
// the write lock; finalize, when set, runs only once the frame is certain to
// be stored and may fill in fields of the frame. A frame carrying a Seq from
// storage keeps it, otherwise the next sequence number is assigned. The
// stored frame is returned.
func (c *Catalog) Commit(p *Pending, finalize func(*models.Frame)) (models.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := p.frame
	if err := c.frames.CanAdd(frame); err != nil {
		return models.Frame{}, err
	}
	if finalize != nil {
		finalize(&frame)
	}
	if frame.Seq > c.seq {
		c.seq = frame.Seq
	} else if frame.Seq == 0 {
		c.seq++
		frame.Seq = c.seq
	}

	if err := c.frames.Add(frame); err != nil {
		return models.Frame{}, err
	}
	if err := c.text.Insert(p.textVec, frame.ImageRef); err != nil {
		return models.Frame{}, fmt.Errorf("indexing frame %s: %w", frame.ImageRef, err)
	}
	if p.visualVec != nil {
		if err := c.visual.Insert(p.visualVec, frame.ImageRef); err != nil {
			c.log.WithError(err).WithField("image_ref", frame.ImageRef).Warn("skipping visual index entry")
		}
	}
	return frame, nil
}

// Append prepares and commits a frame in one step.
func (c *Catalog) Append(ctx context.Context, frame models.Frame, image []byte) error {
	p, err := c.Prepare(ctx, frame, image)
	if err != nil {
		return err
	}
	_, err = c.Commit(p, nil)
	return err
}

// RemoveVideo drops a video's frames and their index entries together.
func (c *Catalog) RemoveVideo(videoID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, err := c.frames.RemoveVideo(videoID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	c.text.Remove(set)
	c.visual.Remove(set)
	return refs, nil
}

// AnnotateColors sets derived color fields on one stored detection and
// returns the updated frame.
func (c *Catalog) AnnotateColors(ref string, index int, color string, colors []string) (models.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.frames.AnnotateColors(ref, index, color, colors); err != nil {
		return models.Frame{}, err
	}
	f, _ := c.frames.Get(ref)
	return f, nil
}

func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames.Clear()
	c.seq = 0
	c.text.Clear()
	c.visual.Clear()
}

func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mode := "text-only"
	if c.visual.Available() {
		mode = "hybrid"
	}
	return Stats{
		VisualAvailable: c.visual.Available(),
		TextIndexed:     c.text.Len(),
		VisualIndexed:   c.visual.Len(),
		Mode:            mode,
	}
}
