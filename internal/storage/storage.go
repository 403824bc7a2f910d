// Package storage keeps frame images and person crops addressed by the
// image reference stored on each frame.
package storage

import (
	"errors"
	"io"
)

var ErrInvalidPath = errors.New("invalid path")

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	ReadFile(path string) ([]byte, error)
	DeleteFile(path string) error
}
