// Package gemini calls the Gemini API directly, outside the DON, to check
// that an API key and prompt work before the key is uploaded as a secret.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/functions-gemini-relay/interfaces"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-flash"

var ErrEmptyResponse = errors.New("no generated text in Gemini response")

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
}

// NewGenAIGenerator returns a Generator backed by the Gemini developer API.
func NewGenAIGenerator(ctx context.Context, apiKey string) (Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, interfaces.NewConfigError(errors.New("GEMINI_API_KEY is empty"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("could not create Gemini client: %w", err))
	}
	return &genaiGenerator{client: client}, nil
}

func (g *genaiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Client asks a single prompt and reports the answer.
type Client struct {
	gen   Generator
	model string
	log   *slog.Logger
}

func NewClient(gen Generator, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{gen: gen, model: DefaultModel, log: log}
}

func (c *Client) SetModel(model string) {
	if model != "" {
		c.model = model
	}
}

func (c *Client) Model() string {
	return c.model
}

// Ask sends prompt to the configured model and returns the generated text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", interfaces.NewConfigError(errors.New("empty prompt"))
	}

	start := time.Now()
	text, err := c.gen.Generate(ctx, c.model, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: Gemini %s: %v", interfaces.ErrNetwork, c.model, err)
	}
	c.log.Debug("gemini answered", "model", c.model, "duration", time.Since(start), "chars", len(text))

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
