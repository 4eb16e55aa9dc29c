package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/ai"
	appsvc "docuchat/internal/app"
	"docuchat/internal/bootstrap"
	"docuchat/internal/cache"
	"docuchat/internal/platform/rabbitmq"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/handler"
	"docuchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.Postgres)
	docRepo := repository.NewDocumentRepository(app.Postgres)
	chunkRepo := repository.NewChunkRepository(app.Postgres)
	messageRepo := repository.NewChatMessageRepository(app.Postgres)

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:    app.Config.Embedding.BaseURL,
		APIKey:     app.Config.Embedding.APIKey,
		Model:      app.Config.Embedding.Model,
		Dimensions: app.Config.Embedding.Dimensions,
	})
	llm := ai.NewChatClient(ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
	})
	publisher := rabbitmq.NewTranscriptPublisher(app.MQConn, app.Config.RabbitMQ.TranscriptPersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	docService := appsvc.NewDocumentService(
		docRepo,
		chunkRepo,
		embedder,
		app.Config.Retrieval.ChunkMaxLength,
		app.Config.Embedding.Concurrency,
	)
	ragService := appsvc.NewRAGService(
		chunkRepo,
		embedder,
		llm,
		publisher,
		historyCache,
		messageRepo,
		app.Config.Retrieval.TopK,
	)

	authHandler := handler.NewAuthHandler(authService)
	docHandler := handler.NewDocumentHandler(docService)
	ragHandler := handler.NewRAGHandler(ragService)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	docGroup := v1.Group("/documents")
	docGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	docGroup.POST("", docHandler.Create)
	docGroup.POST("/upload", docHandler.Upload)
	docGroup.GET("", docHandler.List)
	docGroup.DELETE("/:id", docHandler.Delete)
	docGroup.POST("/:id/embed", docHandler.Embed)
	docGroup.POST("/cleanup", docHandler.Cleanup)

	ragGroup := v1.Group("/rag")
	ragGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	ragGroup.POST("/ask", ragHandler.Ask)
	ragGroup.POST("/ask/stream", ragHandler.AskStream)
	ragGroup.GET("/history", ragHandler.GetHistory)

	return router
}
