package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "interchat_go_backend/internal/errors"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/rs/zerolog"
)

const (
	lineMaxTextRunes    = 5000
	lineMaxReplyTexts   = 5
	LineSignatureHeader = "X-Line-Signature"
)

// VerifyLineSignature checks the base64 HMAC-SHA256 of body under the channel secret.
// An unset secret never verifies.
func VerifyLineSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidateSignature(channelSecret, signature, body)
}

type LineService struct {
	engine         *TranslationEngine
	replier        LineReplier
	channelSecret  string
	targetLanguage string
	fallbackLang   string
}

func NewLineService(engine *TranslationEngine, replier LineReplier, channelSecret, targetLanguage, fallbackLanguage string) *LineService {
	return &LineService{
		engine:         engine,
		replier:        replier,
		channelSecret:  channelSecret,
		targetLanguage: NormalizeLanguage(targetLanguage),
		fallbackLang:   NormalizeLanguage(fallbackLanguage),
	}
}

// HandleWebhook verifies and processes a LINE delivery. Failures on individual events
// are logged so LINE does not redeliver the whole batch.
func (s *LineService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifyLineSignature(s.channelSecret, body, signature) {
		return apperrors.New401Error()
	}
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return apperrors.New400Error("Malformed LINE webhook payload")
	}

	log := zerolog.Ctx(ctx)
	for _, event := range cb.Events {
		msg, ok := event.(webhook.MessageEvent)
		if !ok || msg.ReplyToken == "" {
			continue
		}
		text, ok := msg.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		if err := s.handleText(ctx, msg.ReplyToken, text.Text); err != nil {
			log.Error().Err(err).Str("message_id", text.Id).Msg("Failed to answer LINE message")
		}
	}
	return nil
}

func (s *LineService) handleText(ctx context.Context, replyToken, text string) error {
	source, target := s.engine.ResolveLanguages(ctx, text, "", s.targetLanguage)
	if source == target {
		target = s.fallbackLang
	}

	outcome, err := s.engine.Resolve(ctx, text, source, target)
	if err != nil {
		return err
	}
	s.engine.StoreCache(ctx, text, source, target, outcome)

	return s.replier.Reply(ctx, replyToken, []string{outcome.Text})
}

// LineClient sends replies through the Messaging API.
type LineClient struct {
	accessToken string
	options     []messaging_api.MessagingApiAPIOption
}

// NewLineClient fails when the channel access token is empty.
func NewLineClient(accessToken string, options ...messaging_api.MessagingApiAPIOption) (*LineClient, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("line: channel access token is required")
	}
	opts := append([]messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	}, options...)
	return &LineClient{accessToken: accessToken, options: opts}, nil
}

func (c *LineClient) Reply(ctx context.Context, replyToken string, texts []string) error {
	if len(texts) > lineMaxReplyTexts {
		texts = texts[:lineMaxReplyTexts]
	}
	messages := make([]messaging_api.MessageInterface, 0, len(texts))
	for _, t := range texts {
		messages = append(messages, &messaging_api.TextMessage{Text: truncateRunes(t, lineMaxTextRunes)})
	}

	// WithContext mutates the client, so each reply gets its own.
	api, err := messaging_api.NewMessagingApiAPI(c.accessToken, c.options...)
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	if _, err := api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}
