package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// UnknownText stands in for a frame with no labels so that it still gets a
// vector.
const UnknownText = "unknown"

// TextIndex is an exact squared-L2 index over encoded label text.
type TextIndex struct {
	mu  sync.RWMutex
	enc TextEncoder
	dim int
	entries
}

func NewTextIndex(enc TextEncoder) *TextIndex {
	return &TextIndex{enc: enc, dim: enc.Dimensions()}
}

func (ix *TextIndex) Dimensions() int { return ix.dim }

// Encode maps text to a vector of the index dimension.
func (ix *TextIndex) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		text = UnknownText
	}
	vec, err := ix.enc.EncodeText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	return vec, nil
}

func (ix *TextIndex) Add(ctx context.Context, text, ref string) error {
	vec, err := ix.Encode(ctx, text)
	if err != nil {
		return err
	}
	return ix.Insert(vec, ref)
}

// Insert appends an already encoded vector.
func (ix *TextIndex) Insert(vec []float32, ref string) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.append(append([]float32(nil), vec...), ref)
	return nil
}

// Search returns up to k references in ascending distance from the encoded
// query. An empty query or an empty index yields no hits.
func (ix *TextIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" || ix.Len() == 0 {
		return nil, nil
	}
	vec, err := ix.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.SearchVector(vec, k), nil
}

func (ix *TextIndex) SearchVector(query []float32, k int) []Hit {
	if len(query) != ix.dim {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ranked := topK(len(ix.vectors), k, func(pos int) float64 {
		return SquaredL2(query, ix.vectors[pos])
	}, true)
	return ix.hits(ranked)
}

func (ix *TextIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.refs)
}

// Remove drops every entry whose reference is in refs.
func (ix *TextIndex) Remove(refs map[string]struct{}) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.remove(refs)
}

func (ix *TextIndex) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.reset()
}
