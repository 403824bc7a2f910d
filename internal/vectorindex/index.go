// Package vectorindex implements exact nearest-neighbour search over frame
// vectors: a squared-L2 index for label text and a cosine index for images
// in a joint text/image embedding space.
package vectorindex

import (
	"context"
	"errors"
)

var (
	ErrUnavailable       = errors.New("index unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyVector       = errors.New("empty vector")
)

// Hit is one search result. Score is a squared distance for the text index
// and a cosine similarity for the visual index.
type Hit struct {
	Ref   string
	Score float64
}

// Store is the storage and scan half of an index. The exact linear scan in
// this package implements it; an approximate structure can replace it
// without changes to the ranking engine.
type Store interface {
	Insert(vec []float32, ref string) error
	SearchVector(query []float32, k int) []Hit
	Remove(refs map[string]struct{}) int
	Len() int
	Clear()
}

// TextSearcher is a label-text index. Encode maps free text, including
// empty text, to a vector accepted by Insert and SearchVector.
type TextSearcher interface {
	Store
	Encode(ctx context.Context, text string) ([]float32, error)
}

// VisualSearcher is an image index queried with text from the same
// embedding space. An unavailable index ignores every operation.
type VisualSearcher interface {
	Store
	Available() bool
	EncodeImage(ctx context.Context, image []byte) ([]float32, error)
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

var (
	_ TextSearcher   = (*TextIndex)(nil)
	_ VisualSearcher = (*VisualIndex)(nil)
)

type TextEncoder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type JointEncoder interface {
	EncodeImage(ctx context.Context, image []byte) ([]float32, error)
	EncodeJointText(ctx context.Context, text string) ([]float32, error)
	Available() bool
}

type entries struct {
	vectors [][]float32
	refs    []string
}

func (e *entries) append(vec []float32, ref string) {
	e.vectors = append(e.vectors, vec)
	e.refs = append(e.refs, ref)
}

func (e *entries) remove(refs map[string]struct{}) int {
	n := 0
	vectors := e.vectors[:0]
	kept := e.refs[:0]
	for i, r := range e.refs {
		if _, drop := refs[r]; drop {
			n++
			continue
		}
		vectors = append(vectors, e.vectors[i])
		kept = append(kept, r)
	}
	for i := len(vectors); i < len(e.vectors); i++ {
		e.vectors[i] = nil
	}
	e.vectors, e.refs = vectors, kept
	return n
}

func (e *entries) reset() {
	e.vectors, e.refs = nil, nil
}

func (e *entries) hits(ranked []scored) []Hit {
	out := make([]Hit, len(ranked))
	for i, s := range ranked {
		out[i] = Hit{Ref: e.refs[s.pos], Score: s.score}
	}
	return out
}
