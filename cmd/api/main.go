package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interchat_go_backend/cmd/api/config"
	"interchat_go_backend/internal/api"
	"interchat_go_backend/internal/auth"
	"interchat_go_backend/internal/broker"
	"interchat_go_backend/internal/database"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/services"
	"interchat_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("AUTH_JWT_SECRET is not set in the environment")
	}

	ctx := context.Background()
	ctx = log.Logger.WithContext(ctx)

	database.InitDB()

	var demoRoomID uuid.UUID
	if cfg.DemoRoomID != "" {
		id, err := uuid.Parse(cfg.DemoRoomID)
		if err != nil {
			log.Fatal().Err(err).Msg("DEMO_ROOM_ID is not a valid UUID")
		}
		demoRoomID = id
	}

	// Initialize external services clients
	openAIProvider := services.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.TranscriptionModel)
	var provider services.TranslationProvider = openAIProvider
	if cfg.LLMProvider == "gemini" {
		if cfg.GeminiAPIKey == "" {
			log.Fatal().Msg("GOOGLE_AI_STUDIO_API_KEY is not set in the environment")
		}
		genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GenAI client")
		}
		defer genaiClient.Close()
		provider = services.NewGeminiProvider(genaiClient, cfg.GeminiModel)
	} else if cfg.OpenAIAPIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is not set in the environment")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set; voice transcription will fail")
	}

	var messageBroker broker.MessageBroker = broker.NewBroker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		messageBroker = broker.NewRedisBroker(redisClient)
	}

	var storage services.CloudStorageManager
	if cfg.GCSBucketName != "" {
		gcsService, err := services.NewGCSService(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS service")
		}
		defer gcsService.Close()
		storage = gcsService
	}

	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeSuccessURL, cfg.StripeCancelURL)

	// Initialize Internal services
	userServiceDB := services.NewUserServiceDB(database.DB)
	roomServiceDB := services.NewRoomServiceDB(database.DB)
	messageServiceDB := services.NewMessageServiceDB(database.DB)
	ledger := services.NewCreditLedgerDB(database.DB)

	engine := services.NewTranslationEngine(provider, services.NewTranslationCacheDB(database.DB), cfg.MaxTranslationAttempts, cfg.TokensPerCredit)
	userService := services.NewUserService(userServiceDB, ledger, cfg.SignupCredits)
	roomService := services.NewRoomService(roomServiceDB, demoRoomID)
	messageService := services.NewMessageService(messageServiceDB, roomServiceDB, ledger, engine, messageBroker, services.MessageLimits{
		DemoRoomID:           demoRoomID,
		AnonymousWindow:      cfg.AnonymousWindow,
		AnonymousWindowLimit: cfg.AnonymousWindowLimit,
		AnonymousDailyLimit:  cfg.AnonymousDailyLimit,
		MaxAttachments:       cfg.MaxAttachments,
		MaxAttachmentBytes:   cfg.MaxAttachmentBytes,
	})
	creditService := services.NewCreditService(ledger, userServiceDB, stripeService, messageBroker, creditPacks(cfg))
	knowledgeService := services.NewKnowledgeService(
		services.NewKnowledgeServiceDB(database.DB),
		services.NewContentExtractionService(&http.Client{Timeout: 30 * time.Second}),
		storage,
		cfg.GCSBucketName,
		services.KnowledgeLimits{MaxChunks: cfg.KnowledgeMaxChunks, ChunkWords: cfg.KnowledgeChunkWords},
	)
	voiceService := services.NewVoiceService(openAIProvider, messageService, storage, cfg.GCSBucketName)

	var lineService *services.LineService
	if cfg.LineChannelSecret != "" {
		lineClient, err := services.NewLineClient(cfg.LineChannelAccessToken)
		if err != nil {
			log.Fatal().Err(err).Msg("LINE_CHANNEL_SECRET is set without a usable access token")
		}
		lineService = services.NewLineService(engine, lineClient, cfg.LineChannelSecret, cfg.LineTargetLanguage, cfg.LineFallbackLanguage)
	}

	scheduler, err := services.NewKnowledgeScheduler(knowledgeService, cfg.KnowledgeSchedule, cfg.KnowledgeBatchSize, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid KNOWLEDGE_SCHEDULE")
	}
	scheduler.Start()

	if err := api.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register validators")
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(log.Logger), metrics.GinMiddleware())

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(messageService, messageBroker, upgrader)

	authMiddleware := auth.AuthMiddleware(userService, cfg.JWTSecret)
	api.SetupRoutes(r, authMiddleware, api.Services{
		Users:         userService,
		Rooms:         roomService,
		Messages:      messageService,
		Credits:       creditService,
		Knowledge:     knowledgeService,
		Line:          lineService,
		Voice:         voiceService,
		CronSecret:    cfg.CronSecret,
		CronBatchSize: cfg.KnowledgeBatchSize,
	})
	auth.SetupRoutes(r, userService, cfg.JWTSecret)

	r.GET("/ws", authMiddleware, func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		wsHandler.HandleWebSocket(c.Writer, c.Request, user)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shut down")
	}
}

func creditPacks(cfg *config.Config) []services.CreditPack {
	var packs []services.CreditPack
	for _, p := range cfg.PurchasablePacks() {
		packs = append(packs, services.CreditPack{
			ID:        p.ID,
			PriceID:   p.PriceID,
			Credits:   p.Credits,
			Recurring: p.Recurring,
		})
	}
	return packs
}
