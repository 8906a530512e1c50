package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	maxErrorMessageRunes = 500
	maxKnowledgePDFBytes = 20 << 20
	defaultSourceLimit   = 100
)

type SubmitSourceRequest struct {
	Type  models.KnowledgeSourceType
	Title string
	URL   string
	Text  string
}

type UploadedFile struct {
	Filename string
	Data     []byte
}

type KnowledgeLimits struct {
	MaxChunks  int
	ChunkWords int
}

type ProcessSummary struct {
	Claimed int `json:"claimed"`
	Ready   int `json:"ready"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type KnowledgeService struct {
	db        KnowledgeServiceDB
	extractor ContentExtractor
	storage   CloudStorageManager
	bucket    string
	limits    KnowledgeLimits
}

// NewKnowledgeService builds the ingestion pipeline. storage may be nil, in which case
// uploaded PDFs are parsed at submit time instead of being archived.
func NewKnowledgeService(db KnowledgeServiceDB, extractor ContentExtractor, storage CloudStorageManager, bucket string, limits KnowledgeLimits) *KnowledgeService {
	if limits.MaxChunks <= 0 {
		limits.MaxChunks = 30
	}
	if limits.ChunkWords <= 0 {
		limits.ChunkWords = 1000
	}
	return &KnowledgeService{
		db:        db,
		extractor: extractor,
		storage:   storage,
		bucket:    bucket,
		limits:    limits,
	}
}

func (s *KnowledgeService) SubmitSource(ctx context.Context, user *models.User, req SubmitSourceRequest, file *UploadedFile) (*models.KnowledgeSource, error) {
	if user.IsAnonymous {
		return nil, apperrors.New403Error("Sign in to add knowledge sources")
	}

	src := &models.KnowledgeSource{
		ID:        uuid.New(),
		Type:      req.Type,
		Title:     strings.TrimSpace(req.Title),
		Status:    models.KnowledgePending,
		CreatedBy: user.ID,
	}

	switch req.Type {
	case models.KnowledgeURL, models.KnowledgeYouTube:
		u, err := url.Parse(strings.TrimSpace(req.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperrors.New400Error("A valid http(s) URL is required")
		}
		src.URL = u.String()
	case models.KnowledgeText:
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return nil, apperrors.New400Error("Text is required")
		}
		src.RawText = text
	case models.KnowledgePDF:
		if file == nil || len(file.Data) == 0 {
			return nil, apperrors.New400Error("A PDF file is required")
		}
		if len(file.Data) > maxKnowledgePDFBytes {
			return nil, apperrors.New400Error("PDF is too large")
		}
		if src.Title == "" {
			src.Title = file.Filename
		}
		if err := s.storePDF(ctx, src, file); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.New400Error("Unsupported source type")
	}

	if src.Title == "" {
		src.Title = src.URL
	}
	if err := s.db.CreateSource(ctx, src); err != nil {
		if src.StorageObject != "" {
			if delErr := s.storage.DeleteFile(ctx, s.bucket, src.StorageObject); delErr != nil {
				zerolog.Ctx(ctx).Warn().Err(delErr).Str("object", src.StorageObject).Msg("Failed to remove orphaned upload")
			}
		}
		return nil, apperrors.New500Error(fmt.Errorf("failed to create knowledge source: %w", err))
	}
	return src, nil
}

func (s *KnowledgeService) storePDF(ctx context.Context, src *models.KnowledgeSource, file *UploadedFile) error {
	if s.storage == nil || s.bucket == "" {
		extracted, err := s.extractor.ExtractPDF(file.Data)
		if err != nil {
			return apperrors.New400Error("Could not read text from the PDF")
		}
		src.RawText = extracted.Text
		return nil
	}
	src.StorageObject = fmt.Sprintf("knowledge/%s.pdf", src.ID)
	if err := s.storage.UploadFile(ctx, s.bucket, src.StorageObject, "application/pdf", bytes.NewReader(file.Data)); err != nil {
		return apperrors.New500Error(fmt.Errorf("failed to upload PDF: %w", err))
	}
	return nil
}

// ProcessPending processes up to limit pending sources. Sources claimed by a concurrent
// run are skipped. Per-source failures are recorded on the source, not returned.
func (s *KnowledgeService) ProcessPending(ctx context.Context, limit int) (*ProcessSummary, error) {
	log := zerolog.Ctx(ctx)

	sources, err := s.db.ListPendingSources(ctx, limit)
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("failed to list pending sources: %w", err))
	}

	summary := &ProcessSummary{}
	for _, src := range sources {
		claimed, err := s.db.ClaimSource(ctx, src.ID)
		if err != nil {
			log.Error().Err(err).Str("source_id", src.ID.String()).Msg("Failed to claim knowledge source")
			summary.Skipped++
			continue
		}
		if !claimed {
			summary.Skipped++
			continue
		}
		summary.Claimed++

		if err := s.processSource(ctx, &src); err != nil {
			summary.Failed++
			metrics.KnowledgeSourcesProcessed.WithLabelValues(string(models.KnowledgeError)).Inc()
			log.Warn().Err(err).Str("source_id", src.ID.String()).Msg("Knowledge source failed")
			if failErr := s.db.FailSource(ctx, src.ID, truncateRunes(err.Error(), maxErrorMessageRunes)); failErr != nil {
				log.Error().Err(failErr).Str("source_id", src.ID.String()).Msg("Failed to record knowledge source error")
			}
			continue
		}
		summary.Ready++
		metrics.KnowledgeSourcesProcessed.WithLabelValues(string(models.KnowledgeReady)).Inc()
	}

	log.Info().
		Int("claimed", summary.Claimed).
		Int("ready", summary.Ready).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Knowledge ingestion run finished")
	return summary, nil
}

func (s *KnowledgeService) processSource(ctx context.Context, src *models.KnowledgeSource) error {
	extracted, err := s.extract(ctx, src)
	if err != nil {
		return err
	}
	contents := ChunkWords(extracted.Text, s.limits.ChunkWords, s.limits.MaxChunks)
	if len(contents) == 0 {
		return errors.New("source contains no text")
	}

	chunks := make([]models.KnowledgeChunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.KnowledgeChunk{
			SourceID:   src.ID,
			ChunkIndex: i,
			Content:    c,
			WordCount:  len(strings.Fields(c)),
		}
	}

	title := ""
	if src.Title == "" || src.Title == src.URL {
		title = extracted.Title
	}
	if err := s.db.CompleteSource(ctx, src.ID, title, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

func (s *KnowledgeService) extract(ctx context.Context, src *models.KnowledgeSource) (*ExtractedContent, error) {
	switch src.Type {
	case models.KnowledgeURL, models.KnowledgeYouTube:
		return s.extractor.ExtractURL(ctx, src.URL)
	case models.KnowledgeText:
		return &ExtractedContent{Text: src.RawText}, nil
	case models.KnowledgePDF:
		if src.StorageObject == "" {
			return &ExtractedContent{Text: src.RawText}, nil
		}
		if s.storage == nil {
			return nil, errors.New("cloud storage is not configured")
		}
		data, err := s.storage.DownloadFile(ctx, s.bucket, src.StorageObject)
		if err != nil {
			return nil, fmt.Errorf("failed to download PDF: %w", err)
		}
		return s.extractor.ExtractPDF(data)
	default:
		return nil, fmt.Errorf("unsupported source type %q", src.Type)
	}
}

func (s *KnowledgeService) ListSources(ctx context.Context) ([]models.KnowledgeSource, error) {
	sources, err := s.db.ListSources(ctx, defaultSourceLimit)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return sources, nil
}

func (s *KnowledgeService) ListChunks(ctx context.Context, sourceID uuid.UUID) ([]models.KnowledgeChunk, error) {
	if _, err := s.db.GetSource(ctx, sourceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New404Error("Knowledge source not found")
		}
		return nil, apperrors.New500Error(err)
	}
	chunks, err := s.db.ListChunks(ctx, sourceID)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return chunks, nil
}

// ChunkWords slices text into at most maxChunks pieces of at most wordsPerChunk words.
// Text beyond the last chunk is dropped.
func ChunkWords(text string, wordsPerChunk, maxChunks int) []string {
	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words) && len(chunks) < maxChunks; start += wordsPerChunk {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
