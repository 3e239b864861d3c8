// Package ai abstracts the language model used to produce book
// recommendations. Providers speak either the OpenAI chat completions
// protocol or the Ollama chat API.
package ai

import "context"

// TextGenerator produces a completion from a system prompt and a user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
