package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"interview-service/configs"
	"interview-service/internal/db"
	"interview-service/internal/event"
	"interview-service/internal/handlers"
	"interview-service/internal/llm"
	"interview-service/internal/quota"
	"interview-service/internal/repository"
	"interview-service/internal/service"
	"interview-service/utils"
)

func main() {
	configs.LoadConfig()
	cfg := configs.AppConfig

	gin.SetMode(cfg.GinMode)
	db.InitMongo(cfg.MongoURI)
	database := db.Client.Database(cfg.MongoDatabase)

	// RabbitMQ event publisher
	var publisher *event.Publisher
	if cfg.RabbitMQURI != "" {
		var err error
		publisher, err = event.NewPublisher(cfg.RabbitMQURI, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
	} else {
		log.Println("RabbitMQ not configured, events will not be published")
	}

	// Collaborators: one LLM client behind the generator, evaluators and
	// report generator, all injected at construction.
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	sessionRepo := repository.NewSessionRepository(database)
	usageRepo := quota.NewUsageRepository(database, cfg.DailySessionCap)

	sessionService := service.NewSessionService(
		sessionRepo,
		usageRepo,
		llm.NewQuestionGenerator(llmClient),
		llm.NewAnswerEvaluator(llmClient),
		llm.NewVoiceEvaluator(llmClient),
		llm.NewReportGenerator(llmClient),
		service.Options{
			SessionDuration:  cfg.SessionDuration,
			MaxQuestions:     cfg.MaxQuestions,
			WarnBeforeExpiry: cfg.WarnBeforeExpiry,
		},
	)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	// Background sweeper for stale in-progress sessions.
	sweeper := service.NewSweeper(sessionRepo, cfg.SweepInterval)
	sweeper.Start(context.Background())

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "X-User-ID", "accept", "origin", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	setupSessionRoutes(r, sessionHandler, publisher)

	log.Printf("%s listening on :%s", cfg.ServiceName, cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func setupSessionRoutes(r *gin.Engine, sessionHandler *handlers.SessionHandler, publisher *event.Publisher) {
	protected := r.Group("/protected/interview/session")

	// Resolve the caller identity before any handler runs. Anonymous use is
	// allowed; only an invalid token is rejected.
	protected.Use(func(c *gin.Context) {
		userID, err := utils.GetUserIDFromToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	})

	{
		protected.POST("/", func(c *gin.Context) {
			sessionHandler.CreateSession(c)
			if publisher != nil {
				publisher.Publish("interview.session.started", gin.H{
					"user_id": c.GetString("user_id"),
				})
			}
		})

		protected.POST("/:id/answer", func(c *gin.Context) {
			sessionHandler.SubmitAnswer(c)
			if publisher != nil {
				publisher.Publish("interview.answer.submitted", gin.H{
					"session_id": c.Param("id"),
					"user_id":    c.GetString("user_id"),
				})
			}
		})

		protected.POST("/:id/complete", func(c *gin.Context) {
			sessionHandler.CompleteSession(c)
			if publisher != nil {
				publisher.Publish("interview.session.completed", gin.H{
					"session_id": c.Param("id"),
					"user_id":    c.GetString("user_id"),
				})
			}
		})

		protected.POST("/:id/abandon", func(c *gin.Context) {
			sessionHandler.AbandonSession(c)
			if publisher != nil {
				publisher.Publish("interview.session.abandoned", gin.H{
					"session_id": c.Param("id"),
					"user_id":    c.GetString("user_id"),
				})
			}
		})
	}

	public := r.Group("/public/interview/session")
	{
		public.GET("/:id", sessionHandler.GetSession)
		public.GET("/:id/status", sessionHandler.GetSessionStatus)
	}
}
