// Package query turns free-text footage queries into structured predicates.
package query

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/models"
)

var (
	objectVocabulary = []string{
		"person", "people", "man", "woman", "child", "kid",
		"car", "vehicle", "truck", "bus", "motorcycle", "bicycle", "bike",
		"backpack", "bag", "handbag", "suitcase", "luggage",
		"phone", "laptop", "bottle", "cup", "book",
		"chair", "table", "couch", "bed",
	}
	colorVocabulary = []string{
		"red", "blue", "green", "yellow", "black", "white",
		"orange", "purple", "pink", "brown", "gray", "grey",
	}
	locationVocabulary = []string{"entrance", "exit", "door", "gate", "lobby", "hallway", "corridor"}
	actionVocabulary   = []string{"walking", "running", "standing", "sitting", "carrying", "holding"}

	windowPattern = regexp.MustCompile(`between (\d+) and (\d+)`)
)

const (
	SourcePattern = "pattern"
	SourceLLM     = "llm"
)

// Extractor is an upstream structured parser tried before the pattern
// parser.
type Extractor interface {
	Extract(ctx context.Context, query string) (models.ParsedQuery, error)
}

type Parser struct {
	extractor Extractor
	log       logrus.FieldLogger
}

// NewParser returns a parser. extractor may be nil, in which case only
// pattern matching is used.
func NewParser(extractor Extractor, log logrus.FieldLogger) *Parser {
	return &Parser{extractor: extractor, log: log}
}

// Parse tries the extractor first and falls back to ParsePattern when it is
// missing or fails.
func (p *Parser) Parse(ctx context.Context, text string) models.ParsedQuery {
	if p.extractor == nil || strings.TrimSpace(text) == "" {
		return ParsePattern(text)
	}

	pq, err := p.extractor.Extract(ctx, text)
	if err != nil {
		p.log.WithError(err).Warn("query extractor failed, using pattern parser")
		return ParsePattern(text)
	}
	pq.Raw = text
	pq.Source = SourceLLM
	return pq
}

// ParsePattern matches the lower-cased text against the closed
// vocabularies by substring containment. Tokens come back in vocabulary
// order and location/action take the first vocabulary entry found.
func ParsePattern(text string) models.ParsedQuery {
	lower := strings.ToLower(text)

	pq := models.ParsedQuery{
		Objects: containedIn(lower, objectVocabulary),
		Colors:  containedIn(lower, colorVocabulary),
		Raw:     text,
		Source:  SourcePattern,
	}

	if m := windowPattern.FindStringSubmatch(lower); m != nil {
		start, errS := strconv.ParseFloat(m[1], 64)
		end, errE := strconv.ParseFloat(m[2], 64)
		if errS == nil && errE == nil {
			pq.Window = &models.TimeWindow{Start: start, End: end}
		}
	}

	if found := containedIn(lower, locationVocabulary); len(found) > 0 {
		pq.Location = found[0]
	}
	if found := containedIn(lower, actionVocabulary); len(found) > 0 {
		pq.Action = found[0]
	}
	return pq
}

func containedIn(text string, vocabulary []string) []string {
	out := make([]string, 0)
	for _, tok := range vocabulary {
		if strings.Contains(text, tok) {
			out = append(out, tok)
		}
	}
	return out
}
