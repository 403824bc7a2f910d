package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/models"
)

const DefaultExtractorModel = "gpt-4o-mini"

const extractorPrompt = `You turn CCTV footage search queries into JSON.
Return one JSON object with these keys and nothing else:
  "objects": list of object names mentioned (singular, lower case)
  "colors": list of color names mentioned (lower case)
  "time_range": {"start": seconds, "end": seconds} or null
  "location": a place such as "entrance" or null
  "action": an activity such as "walking" or null`

type ExtractorConfig struct {
	Model   string
	Breaker BreakerConfig
}

// LLMExtractor parses a query with a chat model in JSON mode.
type LLMExtractor struct {
	client  *openai.Client
	model   string
	breaker *breaker
}

type extraction struct {
	Objects   []string `json:"objects"`
	Colors    []string `json:"colors"`
	TimeRange *struct {
		Start *float64 `json:"start"`
		End   *float64 `json:"end"`
	} `json:"time_range"`
	Location *string `json:"location"`
	Action   *string `json:"action"`
}

func NewLLMExtractor(client *openai.Client, cfg ExtractorConfig, log logrus.FieldLogger) *LLMExtractor {
	if cfg.Model == "" {
		cfg.Model = DefaultExtractorModel
	}
	return &LLMExtractor{
		client:  client,
		model:   cfg.Model,
		breaker: newBreaker("query-extractor", cfg.Breaker, log),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, query string) (models.ParsedQuery, error) {
	out, err := e.breaker.execute(func() (interface{}, error) {
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: extractorPrompt},
				{Role: openai.ChatMessageRoleUser, Content: query},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return models.ParsedQuery{}, err
	}

	return decodeExtraction(out.(string), query)
}

func decodeExtraction(content, query string) (models.ParsedQuery, error) {
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return models.ParsedQuery{}, fmt.Errorf("repairing extractor output: %w", err)
	}

	var ex extraction
	if err := json.Unmarshal([]byte(repaired), &ex); err != nil {
		return models.ParsedQuery{}, fmt.Errorf("decoding extractor output: %w", err)
	}

	pq := models.ParsedQuery{
		Objects: cleanTokens(ex.Objects),
		Colors:  cleanTokens(ex.Colors),
		Raw:     query,
		Source:  "llm",
	}
	if ex.TimeRange != nil && ex.TimeRange.Start != nil && ex.TimeRange.End != nil {
		pq.Window = &models.TimeWindow{Start: *ex.TimeRange.Start, End: *ex.TimeRange.End}
	}
	if ex.Location != nil {
		pq.Location = strings.ToLower(strings.TrimSpace(*ex.Location))
	}
	if ex.Action != nil {
		pq.Action = strings.ToLower(strings.TrimSpace(*ex.Action))
	}
	return pq, nil
}

func cleanTokens(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
