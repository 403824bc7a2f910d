package ai

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const DefaultHashDimensions = 384

// HashingEncoder is an offline text encoder. Word tokens and their
// character trigrams are hashed into signed buckets and the result is
// L2-normalized, so equal texts always map to equal vectors.
type HashingEncoder struct {
	dim int
}

func NewHashingEncoder(dim int) *HashingEncoder {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &HashingEncoder{dim: dim}
}

func (e *HashingEncoder) Dimensions() int { return e.dim }

func (e *HashingEncoder) EncodeText(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dim)

	lower := strings.ToLower(strings.TrimSpace(text))
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 && lower != "" {
		tokens = []string{lower}
	}

	for _, tok := range tokens {
		e.add(vec, "w:"+tok, 1.0)
		padded := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(vec, "g:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out, nil
	}
	scale := 1 / math.Sqrt(norm)
	for i, x := range vec {
		out[i] = float32(x * scale)
	}
	return out, nil
}

func (e *HashingEncoder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	bucket := int(h % uint64(e.dim))
	if h>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
