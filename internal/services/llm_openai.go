package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const detectionSampleRunes = 500

type OpenAIProvider struct {
	client             *openai.Client
	model              string
	transcriptionModel string
}

func NewOpenAIProvider(apiKey, baseURL, model, transcriptionModel string) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:             openai.NewClientWithConfig(clientConfig),
		model:              model,
		transcriptionModel: transcriptionModel,
	}
}

func (p *OpenAIProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (TranslationResult, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translationPrompt(sourceLang, targetLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return TranslationResult{}, fmt.Errorf("openai translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return TranslationResult{}, errors.New("openai translate: no choices returned")
	}
	return TranslationResult{
		Text:        strings.TrimSpace(resp.Choices[0].Message.Content),
		TotalTokens: resp.Usage.TotalTokens,
		Model:       resp.Model,
	}, nil
}

func (p *OpenAIProvider) DetectLanguage(ctx context.Context, text string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		MaxTokens:   5,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: truncateRunes(text, detectionSampleRunes)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai detect: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai detect: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, filename string, audio io.Reader, languageHint string) (Transcription, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.transcriptionModel,
		FilePath: filename,
		Reader:   audio,
		Language: languageHint,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("openai transcribe: %w", err)
	}
	return Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

const detectionPrompt = "Identify the language of the user's message. Reply with its two-letter ISO 639-1 code only."

func translationPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You translate chat messages from %s to %s. Keep the tone, emoji, names, URLs and line breaks. "+
			"Reply with the translated message only, without quotes, notes or explanations.",
		LanguageName(sourceLang), LanguageName(targetLang),
	)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
