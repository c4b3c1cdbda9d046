package repository

import "context"

// AIRepository text generation backend
type AIRepository interface {
	// GenerateContent returns the generated reply for a fully assembled prompt
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
