package services

import (
	"context"
	"io"

	"github.com/stripe/stripe-go/v79"
)

type TranslationResult struct {
	Text        string
	TotalTokens int
	Model       string
}

// TranslationProvider is the LLM behind translation and language detection.
type TranslationProvider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (TranslationResult, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
}

type Transcription struct {
	Text     string
	Language string
	Duration float64
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader, languageHint string) (Transcription, error)
}

type CloudStorageManager interface {
	UploadFile(ctx context.Context, bucketName, objectName, contentType string, content io.Reader) error
	DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error)
	DeleteFile(ctx context.Context, bucketName, objectName string) error
}

// CheckoutProvider is the part of Stripe the credit service talks to.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type LineReplier interface {
	Reply(ctx context.Context, replyToken string, texts []string) error
}
