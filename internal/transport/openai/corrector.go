package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

// Correction prompt variants. Versions are additive; existing prompts are
// never edited so that evaluation runs stay comparable across time.
var correctionPrompts = map[string]string{
	"v2": "Fix OCR errors in the following handwritten text transcription. " +
		"Correct character misrecognitions, spacing issues, and obvious typos. " +
		"Preserve proper nouns (names, places) and short ambiguous words (in/is/on, we/he) exactly as written. " +
		"Use British English (UK) spellings. " +
		"Return ONLY the corrected text.",
	"v2.1": "Fix OCR errors in the following handwritten text transcription. " +
		"Correct character misrecognitions, spacing issues, and obvious typos. " +
		"Do NOT add, remove, or rephrase words - only fix recognition errors. " +
		"Keep compound words and place names intact (e.g., 'Bowstreet' stays as one word). " +
		"Preserve proper nouns (names, places) and short ambiguous words (in/is/on, we/he) exactly. " +
		"If the text appears correct, return it unchanged. " +
		"Use British English (UK) spellings. " +
		"Return ONLY the corrected text.",
	"v2.5": "Fix OCR errors in handwritten clinical notes. " +
		"These are often fragmented notes, not full sentences - preserve the original structure. " +
		"Correct character misrecognitions and spacing issues only. " +
		"Do NOT add, remove, or rearrange words. Do NOT add punctuation. " +
		"Preserve dates, times, and abbreviations exactly as written. " +
		"Use British English. Return ONLY the corrected text.",
}

const defaultPromptVersion = "v2"

// Corrector cleans up noisy OCR text via an OpenAI-compatible chat model.
type Corrector struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewCorrector creates a chat-based OCR text corrector.
func NewCorrector(cfg *Config) *Corrector {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Corrector{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Correct implements domain.Corrector. Unknown prompt versions are an error
// rather than a silent fallback so evaluation runs never mix prompts.
func (c *Corrector) Correct(ctx context.Context, rawText, promptVersion string) (string, error) {
	if promptVersion == "" {
		promptVersion = defaultPromptVersion
	}
	system, ok := correctionPrompts[promptVersion]
	if !ok {
		return "", fmt.Errorf("unknown correction prompt version %q: %w", promptVersion, domain.ErrConfiguration)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: rawText},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty correction response: %w", domain.ErrEmbedding)
	}

	corrected := strings.TrimSpace(resp.Choices[0].Message.Content)
	if corrected == "" {
		// Models occasionally return nothing for near-blank input; keep the original.
		return rawText, nil
	}
	return corrected, nil
}
