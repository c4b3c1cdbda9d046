package gemini

import "context"

// PlaceholderText is the reply used when no API key is configured.
const PlaceholderText = "API key missing. Here's a placeholder response..."

// Placeholder answers every prompt with PlaceholderText
type Placeholder struct{}

// GenerateContent returns the placeholder reply
func (Placeholder) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return PlaceholderText, nil
}
