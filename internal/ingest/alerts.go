package ingest

import (
	"fmt"

	"github.com/kdimtricp/camsearch/internal/models"
)

const personLabel = "person"

type AlertKind string

const (
	AlertUnattendedBag AlertKind = "unattended_bag"
	AlertCrowd         AlertKind = "crowd"
)

var bagLabels = []string{"backpack", "handbag", "suitcase", "bag"}

type Alert struct {
	Kind      AlertKind `json:"kind"`
	VideoID   string    `json:"video_id"`
	ImageRef  string    `json:"image_ref"`
	Timestamp float64   `json:"timestamp"`
	Message   string    `json:"message"`
}

func (p *Pipeline) evaluateAlerts(f models.Frame) []Alert {
	alerts := make([]Alert, 0)

	if p.cfg.UnattendedBagAlert && !f.HasLabel(personLabel) {
		for _, bag := range bagLabels {
			if f.HasLabel(bag) {
				alerts = append(alerts, Alert{
					Kind:      AlertUnattendedBag,
					VideoID:   f.VideoID,
					ImageRef:  f.ImageRef,
					Timestamp: f.Timestamp,
					Message:   fmt.Sprintf("Unattended %s detected at %.2fs", bag, f.Timestamp),
				})
				break
			}
		}
	}

	if p.cfg.CrowdThreshold > 0 {
		if n := f.CountLabel(personLabel); n > p.cfg.CrowdThreshold {
			alerts = append(alerts, Alert{
				Kind:      AlertCrowd,
				VideoID:   f.VideoID,
				ImageRef:  f.ImageRef,
				Timestamp: f.Timestamp,
				Message:   fmt.Sprintf("Crowd detected (%d people) at %.2fs", n, f.Timestamp),
			})
		}
	}
	return alerts
}
