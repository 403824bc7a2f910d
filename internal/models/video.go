package models

import (
	"time"

	"github.com/google/uuid"
)

// Video registers a source video whose sampled frames were ingested.
type Video struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FrameCount int       `json:"frame_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

func NewVideo(id, filename string) *Video {
	if id == "" {
		id = uuid.New().String()
	}
	if filename == "" {
		filename = id
	}
	return &Video{
		ID:         id,
		Filename:   filename,
		IngestedAt: time.Now(),
	}
}
