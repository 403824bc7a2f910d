// Package app wires configuration into the running set of collaborators
// shared by the server and the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/ai"
	"github.com/kdimtricp/camsearch/internal/api"
	"github.com/kdimtricp/camsearch/internal/config"
	"github.com/kdimtricp/camsearch/internal/database"
	"github.com/kdimtricp/camsearch/internal/identification"
	"github.com/kdimtricp/camsearch/internal/ingest"
	"github.com/kdimtricp/camsearch/internal/processing"
	"github.com/kdimtricp/camsearch/internal/query"
	"github.com/kdimtricp/camsearch/internal/search"
	"github.com/kdimtricp/camsearch/internal/storage"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

// Status reports which optional capabilities came up.
type Status struct {
	TextEncoder     string `json:"text_encoder"`
	TextDimensions  int    `json:"text_dimensions"`
	VisualAvailable bool   `json:"visual_available"`
	LLMExtractor    bool   `json:"llm_extractor"`
	CropEncoder     string `json:"crop_encoder"`
	ColorEstimator  bool   `json:"color_estimator"`
}

type Services struct {
	Config   *config.Config
	DB       *database.DB
	Frames   *database.FrameRepo
	Videos   *database.VideoRepository
	Images   *storage.LocalStorage
	Catalog  *search.Catalog
	Engine   *search.Engine
	Pipeline *ingest.Pipeline
	Resolver *identification.Resolver
	Status   Status

	log logrus.FieldLogger
}

// Build opens the database and image store and constructs the encoders,
// indices and pipeline. Remote encoders that cannot be reached are logged
// and replaced by their local fallbacks.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Services, error) {
	db, err := database.NewDB(cfg.Database.DB(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	images, err := storage.NewLocalStorage(cfg.Storage.FramesDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Services{
		Config: cfg,
		DB:     db,
		Frames: database.NewFrameRepo(db),
		Videos: database.NewVideoRepository(db),
		Images: images,
		log:    log,
	}

	breaker := cfg.Breaker.AI()
	oa, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAI.Timeout,
	})
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		oa = nil
	case err != nil:
		db.Close()
		return nil, err
	}

	var textEnc vectorindex.TextEncoder
	if cfg.Search.Encoder == "openai" && oa != nil {
		textEnc = ai.NewOpenAIEmbedder(oa, ai.EmbedderConfig{
			Model:             cfg.OpenAI.EmbeddingModel,
			Dimensions:        cfg.OpenAI.EmbeddingDims,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Breaker:           breaker,
		}, log)
		s.Status.TextEncoder = "openai"
	} else {
		if cfg.Search.Encoder == "openai" {
			log.Warn("openai text encoder requested without credentials, using hashing encoder")
		}
		textEnc = ai.NewHashingEncoder(cfg.Search.HashDims)
		s.Status.TextEncoder = "hashing"
	}
	s.Status.TextDimensions = textEnc.Dimensions()

	var joint vectorindex.JointEncoder
	var clip *ai.CLIPClient
	if cfg.CLIP.URL != "" {
		clip = ai.NewCLIPClient(cfg.CLIP.URL, cfg.CLIP.Timeout, breaker, log)
		if clip.Probe(ctx) {
			joint = clip
		}
	}
	s.Status.VisualAvailable = joint != nil

	var extractor query.Extractor
	if cfg.Search.UseLLM && oa != nil {
		extractor = ai.NewLLMExtractor(oa, ai.ExtractorConfig{
			Model:   cfg.OpenAI.ChatModel,
			Breaker: breaker,
		}, log)
		s.Status.LLMExtractor = true
	}

	var crops identification.CropEncoder = ai.NewHistogramEncoder()
	s.Status.CropEncoder = "histogram"
	if cfg.Identity.Encoder == "clip" && clip != nil && clip.Available() {
		crops = clip
		s.Status.CropEncoder = "clip"
	}
	s.Resolver = identification.NewResolver(crops, cfg.Identity.Threshold, log)

	s.Catalog = search.NewCatalog(vectorindex.NewTextIndex(textEnc), vectorindex.NewVisualIndex(joint), log)
	s.Engine = search.NewEngine(s.Catalog, query.NewParser(extractor, log), search.Config{
		Weights: search.Weights{
			Text:        cfg.Search.TextWeight,
			Visual:      cfg.Search.VisualWeight,
			ObjectBoost: cfg.Search.ObjectBoost,
			ColorBoost:  cfg.Search.ColorBoost,
		},
		DefaultTopK: cfg.Search.DefaultTopK,
	}, log)

	opts := []ingest.Option{
		ingest.WithPersistence(s.Frames, s.Videos),
		ingest.WithImageStorage(images),
		ingest.WithResolver(s.Resolver),
	}
	if cfg.Ingest.EstimateColors {
		opts = append(opts, ingest.WithColorEstimator(ai.NewPaletteEstimator()))
		s.Status.ColorEstimator = true
	}
	s.Pipeline = ingest.NewPipeline(s.Catalog, ingest.Config{
		ConfidenceThreshold: cfg.Ingest.ConfidenceThreshold,
		CrowdThreshold:      cfg.Ingest.CrowdThreshold,
		UnattendedBagAlert:  cfg.Ingest.UnattendedBagAlert,
	}, log, opts...)

	return s, nil
}

// API returns the HTTP application over these services.
func (s *Services) API() *api.App {
	return &api.App{
		Catalog:       s.Catalog,
		Engine:        s.Engine,
		Pipeline:      s.Pipeline,
		Resolver:      s.Resolver,
		Videos:        s.Videos,
		Frames:        s.Frames,
		Images:        s.Images,
		Budget:        processing.NewBudget(s.Config.Search.Budget),
		Log:           s.log,
		MaxUploadSize: s.Config.Server.MaxUploadSize,
	}
}

func (s *Services) Close() error {
	return s.DB.Close()
}
