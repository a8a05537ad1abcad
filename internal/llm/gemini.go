package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jonathan/snapsolver/internal/prompts"
	"github.com/jonathan/snapsolver/internal/retry"
	"github.com/jonathan/snapsolver/internal/types"
)

// GeminiClient implements every pipeline collaborator on top of Google
// Gemini: vision calls for classification and transcription, text calls for
// polishing and naming, and a streaming call for solving.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify sends the task's images to a vision model and parses the single
// category keyword it is instructed to emit.
func (c *GeminiClient) Classify(ctx context.Context, artifacts []types.Artifact) (types.Category, error) {
	parts, err := imageParts(artifacts)
	if err != nil {
		return "", err
	}
	parts = append(parts, genai.Text(prompts.MustGet("vision.json", "classify-problem")))

	model := c.model(TierLite)
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("classification call failed: %w", err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", retry.Transient(err)
	}

	category := types.Category(strings.ToUpper(strings.TrimSpace(text)))
	if !category.Valid() {
		return "", retry.Permanent(fmt.Errorf("classifier returned unknown category %q", text))
	}
	return category, nil
}

// ExtractText transcribes one artifact with the OCR prompt.
func (c *GeminiClient) ExtractText(ctx context.Context, artifact types.Artifact) (string, error) {
	parts, err := imageParts([]types.Artifact{artifact})
	if err != nil {
		return "", err
	}
	parts = append(parts, genai.Text(prompts.MustGet("vision.json", "transcribe-image")))

	model := c.model(TierLite)
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("transcription call failed: %w", err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", retry.Transient(err)
	}
	return text, nil
}

// Polish merges raw transcriptions into one coherent problem statement.
func (c *GeminiClient) Polish(ctx context.Context, mergedText string) (string, error) {
	prompt := prompts.Format(prompts.MustGet("solving.json", "polish-text"), map[string]string{
		"MergedText": mergedText,
	})

	model := c.model(TierStandard)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", retry.Transient(fmt.Errorf("polishing call failed: %w", err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", retry.Transient(err)
	}
	return text, nil
}

// Solve starts a streaming generation for the problem and returns a
// ResultStream over its chunks. The model argument comes from the
// category→model routing table; an empty model falls back to TierAdvanced.
func (c *GeminiClient) Solve(ctx context.Context, problemText string, category types.Category, model string) (ResultStream, error) {
	key, err := solvePromptKey(category)
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(prompts.MustGet("solving.json", key), map[string]string{
		"ProblemText": problemText,
	})

	if model == "" {
		model = c.config.GetModel(TierAdvanced)
	}
	generative := c.client.GenerativeModel(model)
	generative.SetTemperature(0.1)

	iter := generative.GenerateContentStream(ctx, genai.Text(prompt))
	return &geminiStream{iter: iter}, nil
}

// SuggestName asks for a short descriptive title for the finished result.
func (c *GeminiClient) SuggestName(ctx context.Context, resultText string) (string, error) {
	prompt := prompts.Format(prompts.MustGet("solving.json", "suggest-filename"), map[string]string{
		"ResultText": resultText,
	})

	model := c.model(TierLite)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", retry.Transient(fmt.Errorf("naming call failed: %w", err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", retry.Transient(err)
	}

	title := firstLine(text)
	if title == "" {
		return "", retry.Permanent(fmt.Errorf("namer returned an empty title"))
	}
	return title, nil
}

// Probe performs a minimal metered call to verify the service is reachable.
// Used by the health gate before each task's expensive calls.
func (c *GeminiClient) Probe(ctx context.Context) error {
	model := c.model(TierLite)
	if _, err := model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	return nil
}

// model returns a configured generative model handle for a tier.
func (c *GeminiClient) model(tier ModelTier) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.config.GetModel(tier))
	model.SetTemperature(0.1) // Low temperature for consistent output
	return model
}

// geminiStream adapts the SDK's response iterator to ResultStream.
type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			return "", io.EOF
		}
		if err != nil {
			return "", retry.Transient(fmt.Errorf("solver stream failed: %w", err))
		}

		text, err := extractTextFromResponse(resp)
		if err != nil {
			// Chunks with no text parts (e.g. safety metadata) are skipped.
			continue
		}
		return text, nil
	}
}

// solvePromptKey maps a routing category to its prompt template.
func solvePromptKey(category types.Category) (string, error) {
	switch category {
	case types.CategoryLeetCode:
		return "solve-leetcode", nil
	case types.CategoryACM:
		return "solve-acm", nil
	case types.CategoryGeneral:
		return "solve-general", nil
	case types.CategoryVisualReasoning:
		return "solve-visual", nil
	default:
		return "", retry.Permanent(fmt.Errorf("no solve prompt for category %q", category))
	}
}

// imageParts reads each artifact from disk into an inline image part.
func imageParts(artifacts []types.Artifact) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(artifacts)+1)
	for _, artifact := range artifacts {
		data, err := os.ReadFile(artifact.Path)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to read artifact %s: %w", artifact.Path, err))
		}
		parts = append(parts, genai.ImageData(imageFormat(artifact.Path), data))
	}
	return parts, nil
}

// imageFormat maps a file extension to the inline-data format tag the API
// expects.
func imageFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".webp":
		return "webp"
	case ".gif":
		return "gif"
	default:
		return "png"
	}
}

// extractTextFromResponse extracts text from a Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// firstLine returns the first non-empty line of text, trimmed of whitespace
// and surrounding quotes.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line != "" {
			return line
		}
	}
	return ""
}
