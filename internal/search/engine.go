package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/camsearch/internal/models"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

// Weights are the fusion constants. The defaults are heuristics kept for
// compatibility with existing rankings and are expected to be recalibrated.
type Weights struct {
	Text        float64
	Visual      float64
	ObjectBoost float64
	ColorBoost  float64
}

func DefaultWeights() Weights {
	return Weights{Text: 0.4, Visual: 0.6, ObjectBoost: 0.2, ColorBoost: 0.3}
}

const DefaultTopK = 5

type QueryParser interface {
	Parse(ctx context.Context, text string) models.ParsedQuery
}

type Config struct {
	Weights     Weights
	DefaultTopK int
}

type Engine struct {
	catalog     *Catalog
	parser      QueryParser
	weights     Weights
	defaultTopK int
	log         logrus.FieldLogger
}

type Result struct {
	ImageRef          string             `json:"image_ref"`
	VideoID           string             `json:"video_id"`
	Timestamp         float64            `json:"timestamp"`
	Clock             string             `json:"clock"`
	Labels            []string           `json:"labels"`
	PersonID          string             `json:"person_id,omitempty"`
	Detections        []models.Detection `json:"detections"`
	TotalScore        float64            `json:"search_score"`
	TextScore         float64            `json:"text_score"`
	VisualScore       float64            `json:"clip_score"`
	MatchedDetections []int              `json:"matched_detection_indices"`
}

type Marker struct {
	Timestamp float64  `json:"timestamp"`
	Labels    []string `json:"labels"`
	PersonID  string   `json:"person_id,omitempty"`
}

type Response struct {
	Query           models.ParsedQuery `json:"query"`
	Results         []Result           `json:"results"`
	Count           int                `json:"count"`
	TimelineMarkers []Marker           `json:"timeline_markers"`
	VideoID         string             `json:"video_id,omitempty"`
}

type candidate struct {
	frame   models.Frame
	text    float64
	visual  float64
	total   float64
	matched []int
}

func NewEngine(catalog *Catalog, parser QueryParser, cfg Config, log logrus.FieldLogger) *Engine {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	return &Engine{
		catalog:     catalog,
		parser:      parser,
		weights:     cfg.Weights,
		defaultTopK: cfg.DefaultTopK,
		log:         log,
	}
}

// Search returns at most topK frames in chronological order. It never
// fails: encoder problems degrade to the signals that are still available.
func (e *Engine) Search(ctx context.Context, raw string, topK int) []Result {
	return e.Run(ctx, raw, topK).Results
}

// Run is Search plus the parsed query and timeline markers.
func (e *Engine) Run(ctx context.Context, raw string, topK int) Response {
	if topK <= 0 {
		topK = e.defaultTopK
	}
	pq := e.parser.Parse(ctx, raw)

	textVec, visualVec := e.encodeQuery(ctx, raw)
	results := e.rank(pq, textVec, visualVec, topK)

	resp := Response{
		Query:           pq,
		Results:         results,
		Count:           len(results),
		TimelineMarkers: make([]Marker, 0, len(results)),
	}
	for _, r := range results {
		resp.TimelineMarkers = append(resp.TimelineMarkers, Marker{
			Timestamp: r.Timestamp,
			Labels:    r.Labels,
			PersonID:  r.PersonID,
		})
		if resp.VideoID == "" {
			resp.VideoID = r.VideoID
		}
	}
	return resp
}

// encodeQuery encodes the query for both indices concurrently. A nil vector
// means that signal is skipped.
func (e *Engine) encodeQuery(ctx context.Context, raw string) (textVec, visualVec []float32) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var g errgroup.Group
	if e.catalog.text.Len() > 0 {
		g.Go(func() error {
			vec, err := e.catalog.text.Encode(ctx, raw)
			if err != nil {
				e.log.WithError(err).Warn("text query encoding failed")
				return nil
			}
			textVec = vec
			return nil
		})
	}
	if e.catalog.visual.Available() && e.catalog.visual.Len() > 0 {
		g.Go(func() error {
			vec, err := e.catalog.visual.EncodeQuery(ctx, raw)
			if err != nil {
				e.log.WithError(err).Warn("visual query encoding failed")
				return nil
			}
			visualVec = vec
			return nil
		})
	}
	_ = g.Wait()
	return textVec, visualVec
}

func (e *Engine) rank(pq models.ParsedQuery, textVec, visualVec []float32, topK int) []Result {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	var textHits, visualHits []vectorindex.Hit
	if textVec != nil {
		textHits = e.catalog.text.SearchVector(textVec, topK)
	}
	if visualVec != nil {
		visualHits = e.catalog.visual.SearchVector(visualVec, topK)
	}

	fused := make(map[string]*candidate)
	order := make([]string, 0, len(textHits)+len(visualHits))
	lookup := func(ref string) *candidate {
		if c, ok := fused[ref]; ok {
			return c
		}
		frame, ok := e.catalog.frames.Get(ref)
		if !ok {
			e.log.WithField("image_ref", ref).Debug("index entry without frame")
			return nil
		}
		c := &candidate{frame: frame}
		fused[ref] = c
		order = append(order, ref)
		return c
	}

	for _, h := range textHits {
		if c := lookup(h.Ref); c != nil {
			c.text = e.weights.Text
			c.total += c.text
		}
	}
	for _, h := range visualHits {
		if c := lookup(h.Ref); c != nil {
			c.visual = h.Score * e.weights.Visual
			c.total += c.visual
		}
	}

	objects := lowered(pq.Objects)
	colors := lowered(pq.Colors)

	kept := make([]*candidate, 0, len(order))
	for _, ref := range order {
		c := fused[ref]
		if pq.Window != nil && !pq.Window.Contains(c.frame.Timestamp) {
			continue
		}
		c.matched = MatchDetections(c.frame.Detections, objects, colors)
		if len(c.matched) == 0 {
			continue
		}
		if len(objects) > 0 {
			c.total += e.weights.ObjectBoost
		}
		if len(colors) > 0 {
			c.total += e.weights.ColorBoost
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.total != b.total {
			return a.total > b.total
		}
		if a.frame.Timestamp != b.frame.Timestamp {
			return a.frame.Timestamp < b.frame.Timestamp
		}
		return a.frame.ImageRef < b.frame.ImageRef
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].frame.Timestamp < kept[j].frame.Timestamp
	})

	results := make([]Result, 0, len(kept))
	for _, c := range kept {
		results = append(results, Result{
			ImageRef:          c.frame.ImageRef,
			VideoID:           c.frame.VideoID,
			Timestamp:         c.frame.Timestamp,
			Clock:             FormatClock(c.frame.Timestamp),
			Labels:            c.frame.Labels,
			PersonID:          c.frame.PersonID,
			Detections:        c.frame.Detections,
			TotalScore:        round3(c.total),
			TextScore:         round3(c.text),
			VisualScore:       round3(c.visual),
			MatchedDetections: c.matched,
		})
	}
	return results
}

// MatchDetections returns the indices of detections whose label contains
// one of objects and whose colors intersect colors. An empty token list
// matches every detection on that axis. Tokens must be lower case.
func MatchDetections(detections []models.Detection, objects, colors []string) []int {
	matched := make([]int, 0)
	for i, d := range detections {
		if len(objects) > 0 && !labelMatches(strings.ToLower(d.Label), objects) {
			continue
		}
		if len(colors) > 0 && !colorMatches(d.ColorSet(), colors) {
			continue
		}
		matched = append(matched, i)
	}
	return matched
}

func labelMatches(label string, objects []string) bool {
	for _, o := range objects {
		if strings.Contains(label, o) {
			return true
		}
	}
	return false
}

func colorMatches(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func lowered(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
