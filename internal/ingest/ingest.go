// Package ingest turns detector output into stored, indexed frames.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/database"
	"github.com/kdimtricp/camsearch/internal/identification"
	"github.com/kdimtricp/camsearch/internal/models"
	"github.com/kdimtricp/camsearch/internal/search"
	"github.com/kdimtricp/camsearch/internal/storage"
)

var ErrInvalidFrame = errors.New("invalid frame")

const (
	DefaultConfidenceThreshold = 0.5
	DefaultCrowdThreshold      = 5
)

type Config struct {
	ConfidenceThreshold float64
	CrowdThreshold      int
	UnattendedBagAlert  bool
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		CrowdThreshold:      DefaultCrowdThreshold,
		UnattendedBagAlert:  true,
	}
}

// RawDetection is a detector record before validation. Box may carry more
// than four values; only the first four are used.
type RawDetection struct {
	Label      string    `json:"label"`
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
	Color      string    `json:"color,omitempty"`
	Colors     []string  `json:"colors,omitempty"`
}

// FrameInput is one sampled frame as produced by the detector. When Image is
// set it is stored and the stored name becomes the frame's image reference.
type FrameInput struct {
	ImageRef      string         `json:"image_ref"`
	VideoID       string         `json:"video_id"`
	VideoFilename string         `json:"video_filename,omitempty"`
	Timestamp     float64        `json:"timestamp"`
	Detections    []RawDetection `json:"detections"`
	PersonID      string         `json:"person_id,omitempty"`

	Image      []byte `json:"-"`
	PersonCrop []byte `json:"-"`
}

type IngestResult struct {
	Frame   models.Frame `json:"frame"`
	Alerts  []Alert      `json:"alerts"`
	Dropped int          `json:"dropped_detections"`
}

type FrameStore interface {
	Save(ctx context.Context, f models.Frame) error
	List(ctx context.Context) ([]models.Frame, error)
	DeleteByVideo(ctx context.Context, videoID string) (int64, error)
}

type VideoStore interface {
	Touch(ctx context.Context, video *models.Video) error
	Delete(ctx context.Context, id string) error
}

// ColorEstimator fills in color fields of detections that have none.
type ColorEstimator interface {
	Annotate(ctx context.Context, frame []byte, detections []models.Detection) error
}

// Pipeline validates frames, resolves identities, indexes, persists and
// raises alerts. Persistence, image storage, identity resolution and color
// estimation are optional; nil collaborators are skipped.
type Pipeline struct {
	catalog  *search.Catalog
	resolver *identification.Resolver
	frames   FrameStore
	videos   VideoStore
	images   storage.Storage
	colors   ColorEstimator
	cfg      Config
	log      logrus.FieldLogger
}

type Option func(*Pipeline)

func WithPersistence(frames FrameStore, videos VideoStore) Option {
	return func(p *Pipeline) {
		p.frames = frames
		p.videos = videos
	}
}

func WithImageStorage(s storage.Storage) Option {
	return func(p *Pipeline) { p.images = s }
}

func WithResolver(r *identification.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

func WithColorEstimator(c ColorEstimator) Option {
	return func(p *Pipeline) { p.colors = c }
}

func NewPipeline(catalog *search.Catalog, cfg Config, log logrus.FieldLogger, opts ...Option) *Pipeline {
	p := &Pipeline{catalog: catalog, cfg: cfg, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestFrame registers one frame. A frame whose keys collide with a stored
// frame is rejected with corpus.ErrDuplicateFrame and leaves no trace.
func (p *Pipeline) IngestFrame(ctx context.Context, in FrameInput) (*IngestResult, error) {
	if in.Timestamp < 0 {
		return nil, fmt.Errorf("%w: negative timestamp %v", ErrInvalidFrame, in.Timestamp)
	}
	if in.ImageRef == "" && len(in.Image) == 0 {
		return nil, fmt.Errorf("%w: image reference or image required", ErrInvalidFrame)
	}

	detections, dropped := p.validate(in)
	if dropped > 0 {
		p.log.WithFields(logrus.Fields{
			"video_id":  in.VideoID,
			"timestamp": in.Timestamp,
			"dropped":   dropped,
		}).Warn("dropped malformed or low-confidence detections")
	}

	frame := models.Frame{
		ImageRef:   in.ImageRef,
		VideoID:    in.VideoID,
		Timestamp:  in.Timestamp,
		Detections: detections,
		Labels:     models.LabelsOf(detections),
		PersonID:   in.PersonID,
	}

	if err := p.catalog.Corpus().CanAdd(frame); err != nil {
		return nil, err
	}

	if p.colors != nil && len(in.Image) > 0 {
		if err := p.colors.Annotate(ctx, in.Image, frame.Detections); err != nil {
			p.log.WithError(err).WithField("video_id", in.VideoID).Warn("color estimation failed")
		}
	}

	stored, err := p.storeImage(in)
	if err != nil {
		return nil, err
	}
	if stored != "" {
		frame.ImageRef = stored
	}

	pending, err := p.catalog.Prepare(ctx, frame, in.Image)
	if err != nil {
		p.discardImage(stored)
		return nil, err
	}

	// Identities are only assigned once the frame is certain to be stored.
	var assign func(*models.Frame)
	if frame.PersonID == "" && p.resolver != nil && frame.HasLabel(personLabel) {
		crop := in.PersonCrop
		if len(crop) == 0 {
			crop = in.Image
		}
		unit := p.resolver.Embed(ctx, crop, frame.ImageRef)
		assign = func(f *models.Frame) {
			f.PersonID = p.resolver.Assign(unit, f.ImageRef)
		}
	}

	frame, err = p.catalog.Commit(pending, assign)
	if err != nil {
		p.discardImage(stored)
		return nil, err
	}

	if err := p.persist(ctx, frame, in.VideoFilename); err != nil {
		return nil, err
	}

	alerts := p.evaluateAlerts(frame)
	for _, a := range alerts {
		p.log.WithFields(logrus.Fields{
			"kind":      a.Kind,
			"video_id":  a.VideoID,
			"timestamp": a.Timestamp,
		}).Warn(a.Message)
	}

	return &IngestResult{Frame: frame, Alerts: alerts, Dropped: dropped}, nil
}

// AnnotateColors updates the color fields of a stored detection.
func (p *Pipeline) AnnotateColors(ctx context.Context, ref string, index int, color string, colors []string) (models.Frame, error) {
	frame, err := p.catalog.AnnotateColors(ref, index, color, colors)
	if err != nil {
		return models.Frame{}, err
	}
	if p.frames != nil {
		if err := p.frames.Save(ctx, frame); err != nil {
			return frame, fmt.Errorf("persisting colors of %s: %w", ref, err)
		}
	}
	return frame, nil
}

// RemoveVideo drops every frame of a video from the catalog, the database
// and image storage.
func (p *Pipeline) RemoveVideo(ctx context.Context, videoID string) ([]string, error) {
	refs, err := p.catalog.RemoveVideo(videoID)
	if err != nil {
		return nil, err
	}

	if p.frames != nil {
		if _, err := p.frames.DeleteByVideo(ctx, videoID); err != nil {
			return refs, fmt.Errorf("deleting frames of %s: %w", videoID, err)
		}
	}
	if p.videos != nil {
		if err := p.videos.Delete(ctx, videoID); err != nil && !errors.Is(err, database.ErrNotFound) {
			return refs, fmt.Errorf("deleting video %s: %w", videoID, err)
		}
	}
	for _, ref := range refs {
		p.discardImage(ref)
	}

	p.log.WithFields(logrus.Fields{"video_id": videoID, "frames": len(refs)}).Info("removed video")
	return refs, nil
}

func (p *Pipeline) storeImage(in FrameInput) (string, error) {
	if p.images == nil || len(in.Image) == 0 {
		if in.ImageRef == "" {
			return "", fmt.Errorf("%w: no image storage for unreferenced image", ErrInvalidFrame)
		}
		return "", nil
	}
	name := in.ImageRef
	if name == "" {
		name = in.VideoID + ".jpg"
	}
	stored, err := p.images.SaveFile(bytes.NewReader(in.Image), storage.FileInfo{
		Filename: name,
		Size:     int64(len(in.Image)),
	})
	if err != nil {
		return "", fmt.Errorf("storing frame image: %w", err)
	}
	return stored, nil
}

func (p *Pipeline) discardImage(ref string) {
	if p.images == nil || ref == "" {
		return
	}
	if err := p.images.DeleteFile(ref); err != nil {
		p.log.WithError(err).WithField("image_ref", ref).Debug("image not removed")
	}
}

func (p *Pipeline) persist(ctx context.Context, frame models.Frame, filename string) error {
	if p.frames == nil {
		return nil
	}
	if err := p.frames.Save(ctx, frame); err != nil {
		p.log.WithError(err).WithField("image_ref", frame.ImageRef).Error("frame indexed but not persisted")
		return fmt.Errorf("persisting frame %s: %w", frame.ImageRef, err)
	}
	if p.videos != nil {
		if err := p.videos.Touch(ctx, models.NewVideo(frame.VideoID, filename)); err != nil {
			return fmt.Errorf("registering video %s: %w", frame.VideoID, err)
		}
	}
	return nil
}
