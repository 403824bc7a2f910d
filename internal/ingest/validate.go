package ingest

import (
	"strings"

	"github.com/kdimtricp/camsearch/internal/models"
)

// validate keeps the detections that have a label, a well-formed box and a
// confidence in [threshold, 1]. Order of the survivors is preserved.
func (p *Pipeline) validate(in FrameInput) ([]models.Detection, int) {
	out := make([]models.Detection, 0, len(in.Detections))
	dropped := 0
	for _, raw := range in.Detections {
		label := strings.TrimSpace(raw.Label)
		box, err := models.BoxFromSlice(raw.Box)
		if err != nil || label == "" ||
			raw.Confidence < 0 || raw.Confidence > 1 ||
			raw.Confidence < p.cfg.ConfidenceThreshold {
			dropped++
			continue
		}
		out = append(out, models.Detection{
			Label:      label,
			Box:        box,
			Confidence: raw.Confidence,
			Color:      raw.Color,
			Colors:     raw.Colors,
		})
	}
	return out, dropped
}
