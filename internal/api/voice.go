package api

import (
	"net/http"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type voiceMessageForm struct {
	TargetLanguage  string `form:"target_language" binding:"omitempty,langcode"`
	LanguageHint    string `form:"language_hint" binding:"omitempty,sourcelang"`
	ClientMessageID string `form:"client_message_id" binding:"omitempty,max=64"`
}

func voiceMessageHandler(voice *services.VoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var form voiceMessageForm
		if err := c.ShouldBind(&form); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid request: "+err.Error()))
			return
		}
		audio, contentType, err := readUpload(c, "audio", services.MaxVoiceBytes)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		req := services.VoiceRequest{
			RoomID:          roomID,
			TargetLanguage:  form.TargetLanguage,
			LanguageHint:    form.LanguageHint,
			ClientMessageID: form.ClientMessageID,
			ContentType:     contentType,
		}
		if audio != nil {
			req.Filename = audio.Filename
			req.Audio = audio.Data
		}

		result, err := voice.TranscribeAndSend(c.Request.Context(), user, req)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}
