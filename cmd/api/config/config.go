package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type CreditPack struct {
	ID        string
	PriceID   string
	Credits   int64
	Recurring bool
}

type Config struct {
	Port           string
	AllowedOrigins []string
	JWTSecret      string

	// Message sending
	DemoRoomID             string
	AnonymousWindow        time.Duration
	AnonymousWindowLimit   int
	AnonymousDailyLimit    int
	MaxAttachments         int
	MaxAttachmentBytes     int64
	TokensPerCredit        int
	MaxTranslationAttempts int
	SignupCredits          int64

	// LLM
	LLMProvider        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	TranscriptionModel string
	GeminiAPIKey       string
	GeminiModel        string

	// Billing
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	CreditPacks         []CreditPack

	// LINE
	LineChannelSecret      string
	LineChannelAccessToken string
	LineTargetLanguage     string
	LineFallbackLanguage   string

	// Knowledge ingestion
	KnowledgeBatchSize  int
	KnowledgeMaxChunks  int
	KnowledgeChunkWords int
	KnowledgeSchedule   string
	CronSecret          string

	GCSBucketName string
	RedisURL      string
}

// Load reads the environment. Every threshold has a hardcoded fallback.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		JWTSecret:      os.Getenv("AUTH_JWT_SECRET"),

		DemoRoomID:             os.Getenv("DEMO_ROOM_ID"),
		AnonymousWindow:        getEnvDuration("ANON_WINDOW", 5*time.Minute),
		AnonymousWindowLimit:   getEnvInt("ANON_WINDOW_LIMIT", 5),
		AnonymousDailyLimit:    getEnvInt("ANON_DAILY_LIMIT", 25),
		MaxAttachments:         getEnvInt("MAX_ATTACHMENTS", 3),
		MaxAttachmentBytes:     int64(getEnvInt("MAX_ATTACHMENT_BYTES", 10<<20)),
		TokensPerCredit:        getEnvInt("TOKENS_PER_CREDIT", 1000),
		MaxTranslationAttempts: getEnvInt("MAX_TRANSLATION_ATTEMPTS", 2),
		SignupCredits:          int64(getEnvInt("SIGNUP_CREDITS", 100)),

		LLMProvider:        getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		GeminiAPIKey:       os.Getenv("GOOGLE_AI_STUDIO_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:5173/credits/success?session_id={CHECKOUT_SESSION_ID}"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:5173/credits"),
		CreditPacks: []CreditPack{
			{ID: "starter", PriceID: os.Getenv("STRIPE_STARTER_PRICE_ID"), Credits: int64(getEnvInt("STARTER_PACK_CREDITS", 500))},
			{ID: "pro", PriceID: os.Getenv("STRIPE_PRO_PRICE_ID"), Credits: int64(getEnvInt("PRO_PACK_CREDITS", 3000))},
			{ID: "monthly", PriceID: os.Getenv("STRIPE_MONTHLY_PRICE_ID"), Credits: int64(getEnvInt("MONTHLY_PLAN_CREDITS", 2000)), Recurring: true},
		},

		LineChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
		LineChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LineTargetLanguage:     getEnv("LINE_TARGET_LANGUAGE", "ja"),
		LineFallbackLanguage:   getEnv("LINE_FALLBACK_LANGUAGE", "en"),

		KnowledgeBatchSize:  getEnvInt("KNOWLEDGE_BATCH_SIZE", 5),
		KnowledgeMaxChunks:  getEnvInt("KNOWLEDGE_MAX_CHUNKS", 30),
		KnowledgeChunkWords: getEnvInt("KNOWLEDGE_CHUNK_WORDS", 1000),
		KnowledgeSchedule:   getEnv("KNOWLEDGE_SCHEDULE", "@every 5m"),
		CronSecret:          os.Getenv("CRON_SECRET"),

		GCSBucketName: os.Getenv("GCS_BUCKET_NAME"),
		RedisURL:      os.Getenv("REDIS_URL"),
	}
}

// PurchasablePacks returns the configured packs that have a Stripe price.
func (c *Config) PurchasablePacks() []CreditPack {
	var packs []CreditPack
	for _, p := range c.CreditPacks {
		if p.PriceID != "" {
			packs = append(packs, p)
		}
	}
	return packs
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
