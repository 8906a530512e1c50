package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

func (p *GeminiProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (TranslationResult, error) {
	out, tokens, err := p.generate(ctx, translationPrompt(sourceLang, targetLang), text)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("gemini translate: %w", err)
	}
	return TranslationResult{Text: out, TotalTokens: tokens, Model: p.model}, nil
}

func (p *GeminiProvider) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, _, err := p.generate(ctx, detectionPrompt, truncateRunes(text, detectionSampleRunes))
	if err != nil {
		return "", fmt.Errorf("gemini detect: %w", err)
	}
	return out, nil
}

func (p *GeminiProvider) generate(ctx context.Context, system, text string) (string, int, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(system))

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", 0, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0, errors.New("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			sb.WriteString(string(v))
		case *genai.Text:
			sb.WriteString(string(*v))
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return strings.TrimSpace(sb.String()), tokens, nil
}
