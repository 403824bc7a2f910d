package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CLIPClient talks to a joint image/text embedding service. Availability is
// decided once by Probe and does not change afterwards.
type CLIPClient struct {
	serviceURL string
	client     *http.Client
	breaker    *breaker
	log        logrus.FieldLogger
	available  bool
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

func NewCLIPClient(serviceURL string, timeout time.Duration, cb BreakerConfig, log logrus.FieldLogger) *CLIPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CLIPClient{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: timeout},
		breaker:    newBreaker("clip", cb, log),
		log:        log,
	}
}

func (c *CLIPClient) HealthCheck(ctx context.Context) error {
	if c.serviceURL == "" {
		return fmt.Errorf("%w: no clip service configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("clip service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clip service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Probe runs the startup health check and records the result.
func (c *CLIPClient) Probe(ctx context.Context) bool {
	if err := c.HealthCheck(ctx); err != nil {
		c.log.WithError(err).Warn("visual search disabled")
		c.available = false
		return false
	}
	c.log.WithField("url", c.serviceURL).Info("clip service available")
	c.available = true
	return true
}

func (c *CLIPClient) Available() bool { return c.available }

func (c *CLIPClient) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	if !c.available {
		return nil, ErrUnavailable
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return c.embed(ctx, "/embed/image", body, writer.FormDataContentType())
}

// EncodeCrop embeds a person crop with the image tower.
func (c *CLIPClient) EncodeCrop(ctx context.Context, crop []byte) ([]float32, error) {
	return c.EncodeImage(ctx, crop)
}

func (c *CLIPClient) EncodeJointText(ctx context.Context, text string) ([]float32, error) {
	if !c.available {
		return nil, ErrUnavailable
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.embed(ctx, "/embed/text", bytes.NewReader(payload), "application/json")
}

func (c *CLIPClient) embed(ctx context.Context, path string, body io.Reader, contentType string) ([]float32, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	out, err := c.breaker.execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("clip service returned status %d: %s", resp.StatusCode, string(msg))
		}

		var embResp embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(embResp.Embedding) == 0 {
			return nil, fmt.Errorf("received empty embedding")
		}
		return toFloat32(embResp.Embedding), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}
