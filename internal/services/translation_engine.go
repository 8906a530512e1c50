package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/models"

	"github.com/rs/zerolog"
)

// cacheContext is appended to every cache key; all cached translations share one context today.
const cacheContext = "demo"

type TranslationOutcome struct {
	Text        string
	UsageType   models.UsageType
	TotalTokens int
	Credits     int64
	Model       string
	// Fresh is true when the text came from a live LLM call and is not cached yet.
	Fresh bool
}

type TranslationEngine struct {
	provider        TranslationProvider
	cache           TranslationCacheDB
	maxAttempts     int
	tokensPerCredit int
}

func NewTranslationEngine(provider TranslationProvider, cache TranslationCacheDB, maxAttempts, tokensPerCredit int) *TranslationEngine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if tokensPerCredit < 1 {
		tokensPerCredit = 1000
	}
	return &TranslationEngine{
		provider:        provider,
		cache:           cache,
		maxAttempts:     maxAttempts,
		tokensPerCredit: tokensPerCredit,
	}
}

// CacheKey hashes the source language and text the way cache rows are keyed.
func CacheKey(sourceLang, content string) string {
	sum := sha256.Sum256([]byte(sourceLang + "|" + content + "|" + cacheContext))
	return hex.EncodeToString(sum[:])
}

// CreditsForTokens converts LLM usage into credits, charging at least one.
func CreditsForTokens(totalTokens, tokensPerCredit int) int64 {
	if tokensPerCredit < 1 {
		tokensPerCredit = 1000
	}
	credits := int64((totalTokens + tokensPerCredit - 1) / tokensPerCredit)
	if credits < 1 {
		credits = 1
	}
	return credits
}

// ResolveLanguages normalizes the target and, when the source is blank or "auto", detects it.
// Detection failures fall back to DefaultLanguage.
func (e *TranslationEngine) ResolveLanguages(ctx context.Context, content, sourceLang, targetLang string) (string, string) {
	target := NormalizeLanguage(targetLang)
	if !IsAutoLanguage(sourceLang) {
		return NormalizeLanguage(sourceLang), target
	}
	if content == "" {
		return target, target
	}
	detected, err := e.provider.DetectLanguage(ctx, content)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Language detection failed, using default")
		return DefaultLanguage, target
	}
	return NormalizeLanguage(detected), target
}

// Resolve returns the translation of content, from the cache when possible. It never
// writes the cache for fresh translations; callers do that once the charge succeeded.
func (e *TranslationEngine) Resolve(ctx context.Context, content, sourceLang, targetLang string) (*TranslationOutcome, error) {
	log := zerolog.Ctx(ctx)

	if sourceLang == targetLang || content == "" {
		metrics.TranslationsTotal.WithLabelValues(string(models.UsageIdentity)).Inc()
		return &TranslationOutcome{Text: content, UsageType: models.UsageIdentity, Model: string(models.UsageIdentity)}, nil
	}

	hash := CacheKey(sourceLang, content)
	entry, err := e.cache.FindCacheEntry(ctx, hash, sourceLang, targetLang)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Translation cache lookup failed, translating live")
	}
	if entry != nil {
		if err := e.cache.IncrementCacheUsage(ctx, entry.ID); err != nil {
			log.Warn().Err(err).Uint("cache_id", entry.ID).Msg("Failed to bump cache usage count")
		}
		metrics.TranslationsTotal.WithLabelValues(string(models.UsageCache)).Inc()
		return &TranslationOutcome{Text: entry.TranslatedText, UsageType: models.UsageCache, Model: entry.ModelVersion}, nil
	}

	var (
		totalTokens int
		lastErr     error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res, err := e.provider.Translate(ctx, content, sourceLang, targetLang)
		if err != nil {
			lastErr = err
			metrics.TranslationAttemptsRejected.WithLabelValues("provider_error").Inc()
			log.Warn().Err(err).Int("attempt", attempt).Msg("Translation attempt failed")
			continue
		}
		totalTokens += res.TotalTokens

		text := strings.TrimSpace(res.Text)
		if reason := e.rejectReason(ctx, content, text, targetLang); reason != "" {
			lastErr = fmt.Errorf("translation rejected: %s", reason)
			metrics.TranslationAttemptsRejected.WithLabelValues(reason).Inc()
			log.Warn().Int("attempt", attempt).Str("reason", reason).Msg("Translation attempt rejected")
			continue
		}

		metrics.TranslationsTotal.WithLabelValues(string(models.UsageLLM)).Inc()
		return &TranslationOutcome{
			Text:        text,
			UsageType:   models.UsageLLM,
			TotalTokens: totalTokens,
			Credits:     CreditsForTokens(totalTokens, e.tokensPerCredit),
			Model:       res.Model,
			Fresh:       true,
		}, nil
	}

	metrics.TranslationsTotal.WithLabelValues("failed").Inc()
	return nil, apperrors.NewTranslationError(fmt.Errorf("%d attempts exhausted: %w", e.maxAttempts, lastErr))
}

// StoreCache writes a fresh translation to the cache. Failures are logged only.
func (e *TranslationEngine) StoreCache(ctx context.Context, content, sourceLang, targetLang string, outcome *TranslationOutcome) {
	if outcome == nil || !outcome.Fresh {
		return
	}
	entry := &models.TranslationCacheEntry{
		SourceHash:     CacheKey(sourceLang, content),
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		TranslatedText: outcome.Text,
		ModelVersion:   outcome.Model,
	}
	if err := e.cache.UpsertCacheEntry(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("hash", entry.SourceHash).Msg("Failed to upsert translation cache")
	}
}

func (e *TranslationEngine) rejectReason(ctx context.Context, source, translated, targetLang string) string {
	if translated == "" {
		return "empty"
	}
	if translated == strings.TrimSpace(source) {
		return "identical"
	}
	detected, err := e.provider.DetectLanguage(ctx, translated)
	if err != nil {
		// an unverifiable result is accepted
		return ""
	}
	if IsSupportedLanguage(detected) && NormalizeLanguage(detected) != targetLang {
		return "language_mismatch"
	}
	return ""
}
