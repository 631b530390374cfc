package classifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/example/smartbin/internal/camera"
)

const geminiPrompt = `You are the sorting unit of a smart waste bin. Look at the item in the photo and answer with exactly one word:
"recyclable" if the item belongs in recycling, or "nonrecyclable" if it does not. Do not add any other text.`

// Gemini classifies photos with a Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed classifier.
func NewGemini(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{client: client, model: model, logger: logger.Named("gemini_classifier")}, nil
}

// Classify sends the photo with a fixed prompt and parses the single-word answer.
func (g *Gemini) Classify(ctx context.Context, photo camera.Photo) (Label, error) {
	data, err := os.ReadFile(photo.Path)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	resp, err := g.model.GenerateContent(ctx, genai.ImageData("jpeg", data), genai.Text(geminiPrompt))
	if err != nil {
		return Unknown, fmt.Errorf("%w: failed to generate content: %v", ErrClassify, err)
	}

	if len(resp.Candidates) == 0 {
		return Unknown, fmt.Errorf("%w: no candidates returned from Gemini", ErrClassify)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Unknown, fmt.Errorf("%w: empty content returned from Gemini", ErrClassify)
	}

	txt, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return Unknown, fmt.Errorf("%w: unexpected response format from Gemini", ErrClassify)
	}

	answer := strings.Trim(strings.TrimSpace(string(txt)), `".`)
	label := ParseLabel(answer)
	if label == Unknown {
		g.logger.Warn("unrecognised label from Gemini", zap.String("answer", string(txt)))
	}
	return label, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
