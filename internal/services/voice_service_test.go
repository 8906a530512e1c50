package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"interchat_go_backend/internal/broker"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTranscribeAndSend(t *testing.T) {
	ctx := context.Background()

	setup := func() (*services.VoiceService, *MockTranscriber, *MockMessageServiceDB, *MockRoomServiceDB, *MockStorage, *models.Room) {
		transcriber := new(MockTranscriber)
		db := new(MockMessageServiceDB)
		rooms := new(MockRoomServiceDB)
		storage := new(MockStorage)
		room := &models.Room{ID: uuid.New(), IsDemo: true}
		rooms.On("GetRoom", mock.Anything, room.ID).Return(room, nil).Maybe()
		engine := services.NewTranslationEngine(new(MockTranslationProvider), new(MockTranslationCacheDB), 2, 1000)
		messages := services.NewMessageService(db, rooms, new(MockCreditLedgerDB), engine, broker.NewBroker(), services.MessageLimits{
			AnonymousWindow:    5 * time.Minute,
			MaxAttachments:     3,
			MaxAttachmentBytes: 10 << 20,
		})
		return services.NewVoiceService(transcriber, messages, storage, "bucket"), transcriber, db, rooms, storage, room
	}

	t.Run("Transcript is sent as a message and the audio archived", func(t *testing.T) {
		svc, transcriber, db, _, storage, room := setup()
		user := &models.User{ID: uuid.New(), PreferredLanguage: "en"}
		transcriber.On("Transcribe", mock.Anything, "memo.m4a", mock.Anything, "").
			Return(services.Transcription{Text: " see you at noon ", Language: "english"}, nil).Once()
		storage.On("UploadFile", mock.Anything, "bucket", mock.MatchedBy(func(name string) bool {
			return strings.HasPrefix(name, "voice/"+user.ID.String()+"/") && strings.HasSuffix(name, ".m4a")
		}), "audio/mp4", mock.Anything).Return(errors.New("bucket unavailable")).Once()
		db.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
			return m.Content == "see you at noon" && m.Metadata.Source == "voice" && m.OriginalLanguage == "en"
		})).Return(nil).Once()
		db.On("UpsertTranslation", mock.Anything, mock.Anything).Return(nil).Once()
		db.On("CreateUsageLog", mock.Anything, mock.Anything).Return(nil).Once()

		result, err := svc.TranscribeAndSend(ctx, user, services.VoiceRequest{
			RoomID:         room.ID,
			TargetLanguage: "en",
			Filename:       "memo.m4a",
			ContentType:    "audio/mp4",
			Audio:          []byte("audio-bytes"),
		})

		require.NoError(t, err)
		assert.Equal(t, "see you at noon", result.Transcript)
		assert.Equal(t, "en", result.Language)
		assert.Equal(t, models.UsageIdentity, result.Result.UsageType)
		storage.AssertExpectations(t)
		db.AssertExpectations(t)
	})

	t.Run("Silence is rejected", func(t *testing.T) {
		svc, transcriber, db, _, _, room := setup()
		user := &models.User{ID: uuid.New()}
		transcriber.On("Transcribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(services.Transcription{Text: "  "}, nil).Once()

		_, err := svc.TranscribeAndSend(ctx, user, services.VoiceRequest{RoomID: room.ID, Audio: []byte("x")})

		assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)
		db.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	})

	t.Run("Size limits", func(t *testing.T) {
		svc, transcriber, _, _, _, room := setup()
		user := &models.User{ID: uuid.New()}

		_, err := svc.TranscribeAndSend(ctx, user, services.VoiceRequest{RoomID: room.ID})
		assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)

		_, err = svc.TranscribeAndSend(ctx, user, services.VoiceRequest{RoomID: room.ID, Audio: make([]byte, services.MaxVoiceBytes+1)})
		assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)
		transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Transcription failure", func(t *testing.T) {
		svc, transcriber, _, _, _, room := setup()
		transcriber.On("Transcribe", mock.Anything, "recording.webm", mock.Anything, "ja").
			Return(services.Transcription{}, errors.New("whisper down")).Once()

		_, err := svc.TranscribeAndSend(ctx, &models.User{ID: uuid.New()}, services.VoiceRequest{RoomID: room.ID, LanguageHint: "ja", Audio: []byte("x")})

		assert.Equal(t, apperrors.ErrorTypeInternalServerError, apperrors.As(err).Type)
	})

	t.Run("Language hint is sent as an ISO code", func(t *testing.T) {
		svc, transcriber, _, _, _, room := setup()
		transcriber.On("Transcribe", mock.Anything, "recording.webm", mock.Anything, "pt").
			Return(services.Transcription{}, errors.New("stop here")).Once()

		_, err := svc.TranscribeAndSend(ctx, &models.User{ID: uuid.New()}, services.VoiceRequest{RoomID: room.ID, LanguageHint: "pt-BR", Audio: []byte("x")})

		require.Error(t, err)
		transcriber.AssertExpectations(t)
	})
}

func TestWhisperLanguageHint(t *testing.T) {
	tests := []struct {
		hint     string
		expected string
	}{
		{"ja", "ja"},
		{"japanese", "ja"},
		{"pt-BR", "pt"},
		{"auto", ""},
		{"AUTO", ""},
		{"", ""},
		{"klingon", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, services.WhisperLanguageHint(tt.hint), tt.hint)
	}
}
