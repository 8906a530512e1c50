package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"interchat_go_backend/internal/auth"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Services struct {
	Users         *services.UserService
	Rooms         *services.RoomService
	Messages      *services.MessageService
	Credits       *services.CreditService
	Knowledge     *services.KnowledgeService
	Line          *services.LineService
	Voice         *services.VoiceService
	CronSecret    string
	CronBatchSize int
}

func SetupRoutes(r *gin.Engine, authMiddleware gin.HandlerFunc, s Services) {
	api := r.Group("/api")
	{
		api.GET("/users/me", authMiddleware, getCurrentUser)
		api.PUT("/users/me/language", authMiddleware, updateLanguageHandler(s.Users))

		api.GET("/rooms", authMiddleware, listRoomsHandler(s.Rooms))
		api.POST("/rooms", authMiddleware, createRoomHandler(s.Rooms))
		api.POST("/rooms/:id/join", authMiddleware, joinRoomHandler(s.Rooms))
		api.GET("/rooms/:id/messages", authMiddleware, listMessagesHandler(s.Messages))
		api.POST("/rooms/:id/messages", authMiddleware, sendMessageHandler(s.Messages))
		api.POST("/rooms/:id/voice", authMiddleware, voiceMessageHandler(s.Voice))
		api.POST("/messages/:id/translate", authMiddleware, translateMessageHandler(s.Messages))

		setupBillingRoutes(api, authMiddleware, s.Credits)
		setupKnowledgeRoutes(api, authMiddleware, s.Knowledge, s.CronSecret, s.CronBatchSize)

		api.POST("/webhooks/line", lineWebhookHandler(s.Line))
	}
}

func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return nil, false
	}
	return user, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.HandleError(c, apperrors.New400Error("Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		apperrors.HandleError(c, apperrors.New400Error("Invalid request: "+err.Error()))
		return false
	}
	return true
}

func getCurrentUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateLanguageRequest struct {
	Language string `json:"language" binding:"required,langcode"`
}

func updateLanguageHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req updateLanguageRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := users.UpdatePreferredLanguage(c.Request.Context(), user, req.Language); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"preferred_language": user.PreferredLanguage})
	}
}

type createRoomRequest struct {
	Name            string `json:"name" binding:"required,max=100"`
	DefaultLanguage string `json:"default_language" binding:"omitempty,langcode"`
}

func createRoomHandler(rooms *services.RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req createRoomRequest
		if !bindJSON(c, &req) {
			return
		}
		room, err := rooms.CreateRoom(c.Request.Context(), user, req.Name, req.DefaultLanguage)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, room)
	}
}

func listRoomsHandler(rooms *services.RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := rooms.ListRooms(c.Request.Context(), user)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": list})
	}
}

func joinRoomHandler(rooms *services.RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		room, err := rooms.JoinRoom(c.Request.Context(), user, roomID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

type sendMessageRequest struct {
	Content         string              `json:"content" binding:"max=4000"`
	SourceLanguage  string              `json:"source_language" binding:"omitempty,sourcelang"`
	TargetLanguage  string              `json:"target_language" binding:"omitempty,langcode"`
	Attachments     []models.Attachment `json:"attachments" binding:"omitempty,dive"`
	ClientMessageID string              `json:"client_message_id" binding:"omitempty,max=64"`
}

func sendMessageHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req sendMessageRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := messages.SendMessage(c.Request.Context(), user, services.SendMessageRequest{
			RoomID:          roomID,
			AuthorID:        user.ID,
			Content:         req.Content,
			SourceLanguage:  req.SourceLanguage,
			TargetLanguage:  req.TargetLanguage,
			Attachments:     req.Attachments,
			ClientMessageID: req.ClientMessageID,
			Source:          "composer",
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		c.JSON(status, result)
	}
}

func listMessagesHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var before *time.Time
		if raw := c.Query("before"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				apperrors.HandleError(c, apperrors.New400Error("before must be an RFC 3339 timestamp"))
				return
			}
			before = &t
		}
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				apperrors.HandleError(c, apperrors.New400Error("limit must be a positive integer"))
				return
			}
			limit = n
		}
		lang := strings.TrimSpace(c.Query("lang"))
		if lang == "" {
			lang = user.PreferredLanguage
		}

		list, err := messages.ListRoomMessages(c.Request.Context(), user, roomID, lang, before, limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": list})
	}
}

type translateMessageRequest struct {
	TargetLanguage string `json:"target_language" binding:"required,langcode"`
}

func translateMessageHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		messageID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req translateMessageRequest
		if !bindJSON(c, &req) {
			return
		}
		translation, err := messages.TranslateMessage(c.Request.Context(), user, messageID, req.TargetLanguage)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, translation)
	}
}
