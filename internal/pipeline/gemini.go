package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"google.golang.org/genai"
)

// contentGenerator is the part of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig selects the model endpoint and sampling settings.
type GeminiConfig struct {
	Project         string
	Location        string
	Vertex          bool
	APIVersion      string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiClient is the ModelClient backed by Gemini.
type GeminiClient struct {
	models contentGenerator
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiClient creates a genai client. Credentials come from the
// environment (Application Default Credentials or GOOGLE_API_KEY).
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: cfg.APIVersion},
	}
	if cfg.Vertex {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}

	return newGeminiClient(client.Models, cfg), nil
}

func newGeminiClient(models contentGenerator, cfg GeminiConfig) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}
	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		ResponseMIMEType: "application/json",
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return &GeminiClient{models: models, model: model, config: gc}
}

// Invoke sends the prompt and returns the model's text. An exceeded deadline
// is reported as domain.ErrModelTimeout, any other failure as
// domain.ErrModelInvocation. An empty answer is returned as-is for the parser
// to reject.
func (c *GeminiClient) Invoke(ctx context.Context, prompt string) (string, error) {
	log := logger.FromContext(ctx)

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generate content: %w", domain.ErrModelTimeout, err)
		}
		return "", fmt.Errorf("%w: generate content: %w", domain.ErrModelInvocation, err)
	}

	text := resp.Text()
	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Int("response_length", len(text)).
		Msg("Model responded")

	return text, nil
}
