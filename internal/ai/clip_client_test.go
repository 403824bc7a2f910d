package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCLIPServer(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embed/image", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{float64(len(data)), 0}, Dimension: 2})
	})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["text"] == "" {
			http.Error(w, "missing text", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{0, 1}, Dimension: 2})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCLIPClient_Available(t *testing.T) {
	srv := newCLIPServer(t, true)
	c := NewCLIPClient(srv.URL, 0, DefaultBreakerConfig(), quietLogger())
	ctx := context.Background()

	assert.False(t, c.Available())
	require.True(t, c.Probe(ctx))
	assert.True(t, c.Available())

	img, err := c.EncodeImage(ctx, []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0}, img)

	crop, err := c.EncodeCrop(ctx, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0}, crop)

	txt, err := c.EncodeJointText(ctx, "red car")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, txt)

	_, err = c.EncodeJointText(ctx, "")
	assert.Error(t, err)
}

func TestCLIPClient_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		url  func(t *testing.T) string
	}{
		{name: "unhealthy", url: func(t *testing.T) string { return newCLIPServer(t, false).URL }},
		{name: "not configured", url: func(t *testing.T) string { return "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCLIPClient(tt.url(t), 0, DefaultBreakerConfig(), quietLogger())
			ctx := context.Background()
			assert.False(t, c.Probe(ctx))
			assert.False(t, c.Available())

			_, err := c.EncodeImage(ctx, []byte("x"))
			assert.ErrorIs(t, err, ErrUnavailable)
			_, err = c.EncodeJointText(ctx, "x")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}
