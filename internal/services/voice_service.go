package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const MaxVoiceBytes = 25 << 20

type VoiceRequest struct {
	RoomID          uuid.UUID
	TargetLanguage  string
	LanguageHint    string
	ClientMessageID string
	Filename        string
	ContentType     string
	Audio           []byte
}

type VoiceResult struct {
	Transcript string             `json:"transcript"`
	Language   string             `json:"language"`
	Result     *SendMessageResult `json:"result"`
}

type VoiceService struct {
	transcriber Transcriber
	messages    *MessageService
	storage     CloudStorageManager
	bucket      string
}

func NewVoiceService(transcriber Transcriber, messages *MessageService, storage CloudStorageManager, bucket string) *VoiceService {
	return &VoiceService{
		transcriber: transcriber,
		messages:    messages,
		storage:     storage,
		bucket:      bucket,
	}
}

// TranscribeAndSend turns a recording into a chat message. The transcript goes through
// the regular send path, so it is translated and charged like typed text.
func (s *VoiceService) TranscribeAndSend(ctx context.Context, caller *models.User, req VoiceRequest) (*VoiceResult, error) {
	if len(req.Audio) == 0 {
		return nil, apperrors.New400Error("Audio file is required")
	}
	if len(req.Audio) > MaxVoiceBytes {
		return nil, apperrors.New400Error("Audio file is too large")
	}

	filename := req.Filename
	if filename == "" {
		filename = "recording.webm"
	}
	transcription, err := s.transcriber.Transcribe(ctx, filename, bytes.NewReader(req.Audio), WhisperLanguageHint(req.LanguageHint))
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("transcription failed: %w", err))
	}
	transcript := strings.TrimSpace(transcription.Text)
	if transcript == "" {
		return nil, apperrors.New400Error("No speech was detected in the recording")
	}

	s.archive(ctx, caller.ID, filename, req.ContentType, req.Audio)

	sourceLang := ""
	if IsSupportedLanguage(transcription.Language) {
		sourceLang = NormalizeLanguage(transcription.Language)
	}
	result, err := s.messages.SendMessage(ctx, caller, SendMessageRequest{
		RoomID:          req.RoomID,
		AuthorID:        caller.ID,
		Content:         transcript,
		SourceLanguage:  sourceLang,
		TargetLanguage:  req.TargetLanguage,
		ClientMessageID: req.ClientMessageID,
		Source:          "voice",
	})
	if err != nil {
		return nil, err
	}
	return &VoiceResult{Transcript: transcript, Language: result.Message.OriginalLanguage, Result: result}, nil
}

// WhisperLanguageHint maps a language name or locale to the ISO 639-1 code Whisper
// expects. Anything unrecognized, "auto" included, becomes no hint.
func WhisperLanguageHint(lang string) string {
	if IsAutoLanguage(lang) || !IsSupportedLanguage(lang) {
		return ""
	}
	return NormalizeLanguage(lang)
}

func (s *VoiceService) archive(ctx context.Context, userID uuid.UUID, filename, contentType string, audio []byte) {
	if s.storage == nil || s.bucket == "" {
		return
	}
	object := fmt.Sprintf("voice/%s/%s%s", userID, uuid.New(), filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.UploadFile(ctx, s.bucket, object, contentType, bytes.NewReader(audio)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("object", object).Msg("Failed to archive voice upload")
	}
}
