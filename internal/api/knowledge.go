package api

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	maxKnowledgeUploadBytes = 20 << 20
	maxCronBatchSize        = 50
)

func setupKnowledgeRoutes(api *gin.RouterGroup, authMiddleware gin.HandlerFunc, knowledge *services.KnowledgeService, cronSecret string, batchSize int) {
	api.GET("/knowledge/sources", authMiddleware, listSourcesHandler(knowledge))
	api.POST("/knowledge/sources", authMiddleware, submitSourceHandler(knowledge))
	api.GET("/knowledge/sources/:id/chunks", authMiddleware, listChunksHandler(knowledge))
	api.POST("/cron/knowledge", cronSecretMiddleware(cronSecret), processKnowledgeHandler(knowledge, batchSize))
}

// cronSecretMiddleware admits callers presenting the shared cron secret as a bearer token.
// An empty secret disables the endpoint.
func cronSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		c.Next()
	}
}

type submitSourceRequest struct {
	Type  string `json:"type" form:"type" binding:"required,oneof=url pdf youtube text"`
	Title string `json:"title" form:"title" binding:"max=200"`
	URL   string `json:"url" form:"url"`
	Text  string `json:"text" form:"text"`
}

func submitSourceHandler(knowledge *services.KnowledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		var req submitSourceRequest
		var file *services.UploadedFile
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			if err := c.ShouldBind(&req); err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Invalid request: "+err.Error()))
				return
			}
			var err error
			file, _, err = readUpload(c, "file", maxKnowledgeUploadBytes)
			if err != nil {
				apperrors.HandleError(c, err)
				return
			}
		} else if !bindJSON(c, &req) {
			return
		}

		src, err := knowledge.SubmitSource(c.Request.Context(), user, services.SubmitSourceRequest{
			Type:  models.KnowledgeSourceType(req.Type),
			Title: req.Title,
			URL:   req.URL,
			Text:  req.Text,
		}, file)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, src)
	}
}

func listSourcesHandler(knowledge *services.KnowledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := knowledge.ListSources(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources})
	}
}

func listChunksHandler(knowledge *services.KnowledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		chunks, err := knowledge.ListChunks(c.Request.Context(), sourceID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"chunks": chunks})
	}
}

// processKnowledgeHandler runs one ingestion batch. ?limit= overrides the configured
// batch size up to maxCronBatchSize.
func processKnowledgeHandler(knowledge *services.KnowledgeService, batchSize int) gin.HandlerFunc {
	if batchSize <= 0 {
		batchSize = 1
	}
	return func(c *gin.Context) {
		limit := min(batchSize, maxCronBatchSize)
		if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
			limit = min(n, maxCronBatchSize)
		}
		summary, err := knowledge.ProcessPending(c.Request.Context(), limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// readUpload reads a multipart file field fully, rejecting files above maxBytes.
// A missing field yields a nil file so the service can report what is required.
func readUpload(c *gin.Context, field string, maxBytes int64) (*services.UploadedFile, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", nil
	}
	if header.Size > maxBytes {
		return nil, "", apperrors.New400Error("Uploaded file is too large")
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", apperrors.New400Error("Failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, "", apperrors.New400Error("Failed to read uploaded file")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", apperrors.New400Error("Uploaded file is too large")
	}
	return &services.UploadedFile{Filename: header.Filename, Data: data}, header.Header.Get("Content-Type"), nil
}
