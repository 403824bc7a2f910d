package identification

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/camsearch/internal/models"
)

type fakeEncoder map[string][]float32

func (f fakeEncoder) EncodeCrop(_ context.Context, crop []byte) ([]float32, error) {
	v, ok := f[string(crop)]
	if !ok {
		return nil, errors.New("cannot embed")
	}
	return v, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func unitAt(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func TestResolver_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		sameID     bool
	}{
		{name: "above threshold", similarity: 0.90, sameID: true},
		{name: "below threshold", similarity: 0.70, sameID: false},
		{name: "just below threshold", similarity: 0.84, sameID: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := []float32{float32(tt.similarity), float32(math.Sqrt(1 - tt.similarity*tt.similarity))}
			enc := fakeEncoder{"first": {2, 0}, "second": second}
			r := NewResolver(enc, DefaultThreshold, quiet())
			ctx := context.Background()

			id1 := r.Resolve(ctx, []byte("first"), "f1.jpg")
			before := r.Count()
			id2 := r.Resolve(ctx, []byte("second"), "f2.jpg")

			assert.Equal(t, "P1", id1)
			if tt.sameID {
				assert.Equal(t, id1, id2)
				assert.Equal(t, before, r.Count())
				return
			}
			assert.Equal(t, "P2", id2)
			assert.Equal(t, before+1, r.Count())
		})
	}
}

func TestResolver_PicksMaximumSimilarity(t *testing.T) {
	enc := fakeEncoder{
		"a":     unitAt(0),
		"b":     unitAt(40),
		"query": unitAt(25),
	}
	r := NewResolver(enc, DefaultThreshold, quiet())
	ctx := context.Background()

	require.Equal(t, "P1", r.Resolve(ctx, []byte("a"), "1.jpg"))
	require.Equal(t, "P2", r.Resolve(ctx, []byte("b"), "2.jpg"))
	assert.Equal(t, "P2", r.Resolve(ctx, []byte("query"), "3.jpg"))
}

func TestResolver_StateAndReferenceNeverDrifts(t *testing.T) {
	enc := fakeEncoder{
		"a":  unitAt(0),
		"a2": unitAt(20),
		"a3": unitAt(40),
	}
	r := NewResolver(enc, DefaultThreshold, quiet())
	ctx := context.Background()

	require.Equal(t, "P1", r.Resolve(ctx, []byte("a"), "1.jpg"))
	id, ok := r.Get("P1")
	require.True(t, ok)
	assert.Equal(t, models.IdentityCreated, id.State)

	require.Equal(t, "P1", r.Resolve(ctx, []byte("a2"), "2.jpg"))
	id, _ = r.Get("P1")
	assert.Equal(t, models.IdentityUpdated, id.State)
	assert.Equal(t, "1.jpg", id.FirstSeen)
	assert.Equal(t, "2.jpg", id.LastSeen)
	assert.Equal(t, 2, id.Observations)
	assert.InDelta(t, 1.0, id.Embedding[0], 1e-6)

	// 40 degrees from the fixed reference is below threshold even though it
	// is only 20 degrees from the last observation.
	assert.Equal(t, "P2", r.Resolve(ctx, []byte("a3"), "3.jpg"))
}

func TestResolver_EmbeddingFailure(t *testing.T) {
	enc := fakeEncoder{"ok": {1, 1}, "zero": {0, 0}}
	r := NewResolver(enc, DefaultThreshold, quiet())
	ctx := context.Background()

	assert.Equal(t, "P1", r.Resolve(ctx, []byte("broken"), "1.jpg"))
	assert.Equal(t, "P2", r.Resolve(ctx, []byte("zero"), "2.jpg"))
	assert.Equal(t, "P3", r.Resolve(ctx, []byte("ok"), "3.jpg"))
	assert.Equal(t, "P4", r.Resolve(ctx, []byte("broken"), "4.jpg"))
	assert.Equal(t, "P3", r.Resolve(ctx, []byte("ok"), "5.jpg"))

	p1, ok := r.Get("P1")
	require.True(t, ok)
	assert.False(t, p1.HasEmbedding())
	assert.Equal(t, 4, r.Count())

	noEncoder := NewResolver(nil, 0, quiet())
	assert.Equal(t, "P1", noEncoder.Resolve(ctx, []byte("x"), "1.jpg"))
	assert.Equal(t, "P2", noEncoder.Resolve(ctx, []byte("x"), "2.jpg"))
}

func TestResolver_GetAndReset(t *testing.T) {
	r := NewResolver(fakeEncoder{"a": {1}}, 0, quiet())
	ctx := context.Background()
	r.Resolve(ctx, []byte("a"), "1.jpg")

	for _, id := range []string{"", "P", "P0", "P2", "X1", "P-1"} {
		_, ok := r.Get(id)
		assert.False(t, ok, id)
	}

	list := r.Identities()
	require.Len(t, list, 1)
	list[0].ID = "changed"
	got, _ := r.Get("P1")
	assert.Equal(t, "P1", got.ID)

	r.Reset()
	assert.Zero(t, r.Count())
	assert.Equal(t, "P1", r.Resolve(ctx, []byte("a"), "2.jpg"))
}

func TestResolver_ConcurrentResolutionsAreLinearized(t *testing.T) {
	r := NewResolver(fakeEncoder{"same": {0.3, 0.4}}, DefaultThreshold, quiet())
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 64)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Resolve(ctx, []byte("same"), "f.jpg")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Count())
	for _, id := range ids {
		assert.Equal(t, "P1", id)
	}
}

func TestResolver_EmbedDoesNotRegister(t *testing.T) {
	enc := fakeEncoder{"a": unitAt(0)}
	r := NewResolver(enc, DefaultThreshold, quiet())
	ctx := context.Background()

	unit := r.Embed(ctx, []byte("a"), "f1.jpg")
	require.NotNil(t, unit)
	assert.Nil(t, r.Embed(ctx, []byte("unknown"), "f2.jpg"))
	assert.Zero(t, r.Count())

	assert.Equal(t, "P1", r.Assign(unit, "f1.jpg"))
	assert.Equal(t, "P1", r.Assign(unit, "f3.jpg"))
	assert.Equal(t, "P2", r.Assign(nil, "f4.jpg"))
	assert.Equal(t, 2, r.Count())
}
