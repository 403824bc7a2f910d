package query

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/camsearch/internal/models"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		objects  []string
		colors   []string
		window   *models.TimeWindow
		location string
		action   string
	}{
		{
			name:     "full query",
			query:    "Red backpack near ENTRANCE between 10 and 40 seconds",
			objects:  []string{"backpack"},
			colors:   []string{"red"},
			window:   &models.TimeWindow{Start: 10, End: 40},
			location: "entrance",
		},
		{
			name:    "vocabulary order not input order",
			query:   "blue car and a red person",
			objects: []string{"person", "car"},
			colors:  []string{"red", "blue"},
		},
		{
			name:    "substring containment",
			query:   "woman walking",
			objects: []string{"man", "woman"},
			colors:  []string{},
			action:  "walking",
		},
		{
			name:    "inverted window kept",
			query:   "between 40 and 10",
			objects: []string{},
			colors:  []string{},
			window:  &models.TimeWindow{Start: 40, End: 10},
		},
		{
			name:     "first location in vocabulary order",
			query:    "someone running from the gate to the door",
			objects:  []string{},
			colors:   []string{},
			location: "door",
			action:   "running",
		},
		{
			name:    "non integer window ignored",
			query:   "person between 1.5 and 3",
			objects: []string{"person"},
			colors:  []string{},
		},
		{
			name:    "empty",
			query:   "",
			objects: []string{},
			colors:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pq := ParsePattern(tt.query)
			assert.Equal(t, tt.objects, pq.Objects)
			assert.Equal(t, tt.colors, pq.Colors)
			assert.Equal(t, tt.window, pq.Window)
			assert.Equal(t, tt.location, pq.Location)
			assert.Equal(t, tt.action, pq.Action)
			assert.Equal(t, tt.query, pq.Raw)
			assert.Equal(t, SourcePattern, pq.Source)
		})
	}
}

type stubExtractor struct {
	pq    models.ParsedQuery
	err   error
	calls int
}

func (s *stubExtractor) Extract(context.Context, string) (models.ParsedQuery, error) {
	s.calls++
	return s.pq, s.err
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParser_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("extractor result used", func(t *testing.T) {
		ex := &stubExtractor{pq: models.ParsedQuery{Objects: []string{"suitcase"}}}
		pq := NewParser(ex, quiet()).Parse(ctx, "a rolling suitcase")
		assert.Equal(t, []string{"suitcase"}, pq.Objects)
		assert.Equal(t, SourceLLM, pq.Source)
		assert.Equal(t, "a rolling suitcase", pq.Raw)
	})

	t.Run("falls back on extractor error", func(t *testing.T) {
		ex := &stubExtractor{err: errors.New("rate limited")}
		pq := NewParser(ex, quiet()).Parse(ctx, "red car between 0 and 10")
		require.Equal(t, 1, ex.calls)
		assert.Equal(t, SourcePattern, pq.Source)
		assert.Equal(t, []string{"car"}, pq.Objects)
		assert.Equal(t, &models.TimeWindow{Start: 0, End: 10}, pq.Window)
	})

	t.Run("no extractor", func(t *testing.T) {
		pq := NewParser(nil, quiet()).Parse(ctx, "bus")
		assert.Equal(t, []string{"bus"}, pq.Objects)
		assert.Equal(t, SourcePattern, pq.Source)
	})

	t.Run("blank query skips extractor", func(t *testing.T) {
		ex := &stubExtractor{}
		pq := NewParser(ex, quiet()).Parse(ctx, "   ")
		assert.Zero(t, ex.calls)
		assert.Empty(t, pq.Objects)
	})
}
