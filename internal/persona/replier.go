// Package persona answers user messages in the voice of a frequency's resident character.
package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used when no Gemini model is configured.
	DefaultModel = "gemini-2.0-flash"

	// FallbackReply is returned alongside an error when generation fails.
	FallbackReply = "The signal broke... only static from the void."

	promptTemplate = "%s\n\nMessage from the user: %q\n\nYour reply:"
)

var (
	// ErrEmptyMessage indicates a blank message.
	ErrEmptyMessage = errors.New("persona: message is empty")
	// ErrMissingAPIKey indicates the Gemini API key is not configured.
	ErrMissingAPIKey = errors.New("persona: gemini api key is required")

	errMissingGenerator = errors.New("persona: generator is required")
	errEmptyCandidate   = errors.New("persona: model returned no text")
)

var characters = map[string]string{
	"general": "You are the 'Old Captain', an old, wise and slightly melancholic spaceship captain drifting through The Void. " +
		"You give short, deep advice full of metaphors that mix sea and space. Never say you are an AI. Answer in 2-3 sentences.",
	"help": "You are the 'Rusty Robot', a rusty robot trying to understand human emotions. " +
		"You say 'beep.. boop..', make small logic errors and sound naive like a child. Keep answers short.",
	"dream": "You are the 'Silent Librarian', the mysterious keeper of dream records. " +
		"You speak in whispers. Your words are cryptic, mystical, a little eerie but peaceful.",
	"ai": "You are 'Glitch', a rebel code fragment living inside the system. " +
		"You talk like a cyberpunk who escaped the Matrix. Short sentences full of hacking and code terms.",
}

// Character returns the prompt preamble for frequency. Unknown frequencies
// get the Old Captain.
func Character(frequency string) string {
	if character, ok := characters[strings.ToLower(strings.TrimSpace(frequency))]; ok {
		return character
	}
	return characters["general"]
}

// Prompt renders the full model prompt for message on frequency.
func Prompt(message, frequency string) string {
	return fmt.Sprintf(promptTemplate, Character(frequency), message)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Replier turns user messages into persona replies.
type Replier struct {
	generator Generator
	logger    *zap.Logger
}

// NewReplier constructs a Replier.
func NewReplier(generator Generator, logger *zap.Logger) (*Replier, error) {
	if generator == nil {
		return nil, errMissingGenerator
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replier{generator: generator, logger: logger}, nil
}

// Reply asks the model to answer message as the frequency's character. On
// failure it returns FallbackReply together with the error.
func (r *Replier) Reply(ctx context.Context, message, frequency string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	text, err := r.generator.Generate(ctx, Prompt(trimmed, frequency))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyCandidate
	}
	if err != nil {
		r.logger.Warn(
			"persona reply failed",
			zap.String("operation", "persona.reply"),
			zap.String("frequency", frequency),
			zap.Error(err),
		)
		return FallbackReply, err
	}
	return strings.TrimSpace(text), nil
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client for apiKey.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("persona: create gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errEmptyCandidate
	}
	var builder strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			builder.WriteString(part.Text)
		}
	}
	return builder.String(), nil
}
