package enhance

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Default model names. Both can be overridden through config.
const (
	DefaultTextModel  = "gemini-2.0-flash"
	DefaultImageModel = "imagen-3.0-generate-002"
)

// Generator produces enhanced story text and illustrations.
type Generator interface {
	EnhanceStory(ctx context.Context, prompt string) (string, error)
	GenerateIllustration(ctx context.Context, prompt string) ([]byte, error)
}

// GenAIGenerator implements Generator using Google's Gemini API.
type GenAIGenerator struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// NewGenAIGenerator creates a generator backed by the GenAI API.
func NewGenAIGenerator(ctx context.Context, apiKey, textModel, imageModel string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if textModel == "" {
		textModel = DefaultTextModel
	}
	if imageModel == "" {
		imageModel = DefaultImageModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIGenerator{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

// EnhanceStory generates the enhanced story text for the given prompt.
func (g *GenAIGenerator) EnhanceStory(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI text generation failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned empty story text")
	}
	return text, nil
}

// GenerateIllustration generates a single PNG illustration for the prompt.
func (g *GenAIGenerator) GenerateIllustration(ctx context.Context, prompt string) ([]byte, error) {
	result, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI image generation failed: %w", err)
	}

	if len(result.GeneratedImages) == 0 || result.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("no images returned")
	}
	return result.GeneratedImages[0].Image.ImageBytes, nil
}

// Name identifies the generator in logs.
func (g *GenAIGenerator) Name() string {
	return fmt.Sprintf("genai:%s+%s", g.textModel, g.imageModel)
}
