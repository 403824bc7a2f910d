package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// VisualIndex is an exact cosine-similarity index of image vectors queried
// with text from the same joint embedding space. When the encoder is not
// available at construction the index stays unavailable and every
// operation is a no-op.
type VisualIndex struct {
	mu        sync.RWMutex
	enc       JointEncoder
	available bool
	dim       int
	entries
}

func NewVisualIndex(enc JointEncoder) *VisualIndex {
	return &VisualIndex{
		enc:       enc,
		available: enc != nil && enc.Available(),
	}
}

func (ix *VisualIndex) Available() bool { return ix.available }

// EncodeImage returns the normalized image vector.
func (ix *VisualIndex) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	if !ix.available {
		return nil, ErrUnavailable
	}
	vec, err := ix.enc.EncodeImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return ix.normalized(vec)
}

// EncodeQuery returns the normalized joint-space text vector.
func (ix *VisualIndex) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	if !ix.available {
		return nil, ErrUnavailable
	}
	vec, err := ix.enc.EncodeJointText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	return ix.normalized(vec)
}

func (ix *VisualIndex) Add(ctx context.Context, image []byte, ref string) error {
	if !ix.available {
		return nil
	}
	vec, err := ix.EncodeImage(ctx, image)
	if err != nil {
		return err
	}
	return ix.Insert(vec, ref)
}

// Insert stores a vector after normalizing it. The first insert fixes the
// index dimension.
func (ix *VisualIndex) Insert(vec []float32, ref string) error {
	if !ix.available {
		return nil
	}
	unit := Normalize(vec)
	if unit == nil {
		return ErrEmptyVector
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dim == 0 {
		ix.dim = len(unit)
	}
	if len(unit) != ix.dim {
		return fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(unit), ix.dim)
	}
	ix.append(unit, ref)
	return nil
}

// Search returns up to k references by descending cosine similarity.
func (ix *VisualIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if !ix.available || strings.TrimSpace(query) == "" || ix.Len() == 0 {
		return nil, nil
	}
	vec, err := ix.EncodeQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.SearchVector(vec, k), nil
}

func (ix *VisualIndex) SearchVector(query []float32, k int) []Hit {
	if !ix.available {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(query) != ix.dim {
		return nil
	}

	ranked := topK(len(ix.vectors), k, func(pos int) float64 {
		return Dot(query, ix.vectors[pos])
	}, false)
	return ix.hits(ranked)
}

func (ix *VisualIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.refs)
}

func (ix *VisualIndex) Remove(refs map[string]struct{}) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.remove(refs)
}

func (ix *VisualIndex) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.reset()
}

func (ix *VisualIndex) normalized(vec []float32) ([]float32, error) {
	unit := Normalize(vec)
	if unit == nil {
		return nil, ErrEmptyVector
	}
	return unit, nil
}
