package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/handlers"
	"github.com/MarkusAkitus/Teender/internal/middleware"
	"github.com/MarkusAkitus/Teender/internal/moderation"
	"github.com/MarkusAkitus/Teender/internal/routes"
	"github.com/MarkusAkitus/Teender/internal/security"
	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB (mask credentials in the log)
	log.Printf("Connecting to MongoDB...")
	if cfg.MongoURI != "" {
		maskedURI := cfg.MongoURI
		if strings.Contains(maskedURI, "@") {
			parts := strings.Split(maskedURI, "@")
			if len(parts) > 0 && strings.Contains(parts[0], ":") {
				userPass := strings.Split(parts[0], ":")
				if len(userPass) >= 3 {
					maskedURI = strings.Replace(maskedURI, userPass[2], "***", 1)
				}
			}
		}
		log.Printf("MongoDB URI: %s", maskedURI)
	}
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	// Ensure MongoDB indexes for chat history and matches
	if err := services.EnsureChatIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB chat indexes: %v", err)
	} else {
		log.Println("✅ MongoDB chat indexes ensured")
	}

	// Security guard and moderation system
	guard := security.NewGuard(cfg.Security)
	guard.StartMonitoring()
	defer guard.StopMonitoring()
	log.Println("✅ Security guard monitoring started")

	moderator := moderation.NewSystem(cfg.Moderation)
	moderator.StartMonitoring()
	defer moderator.StopMonitoring()
	log.Println("✅ Moderation system monitoring started")

	// Cloudinary
	var uploader services.Uploader
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("File uploads will not be available")
		} else {
			uploader = cld
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. File uploads will not be available")
	}

	// Session service and the action mediator
	sessionService := services.NewSessionService(guard)

	mediator := services.NewActionMediator(services.MediatorDeps{
		Guard:        guard,
		Moderator:    moderator,
		Users:        services.PostgresUserStore{},
		Restrictions: services.RedisRestrictionStore{},
		Messages:     services.MongoMessageStore{},
		Violations:   services.MongoViolationRecorder{},
		Notifier:     services.RedisChatNotifier{},
		Sessions:     sessionService,
		Uploader:     uploader,
		Queue:        services.EnqueueAction,
	})

	handlers.Init(mediator, sessionService, guard, moderator)
	handlers.InitAdmin(cfg.AdminToken)

	// Background services
	stopCleanup := services.StartViolationCleanup(time.Hour, 7*24*time.Hour)
	defer stopCleanup()
	log.Println("✅ Violation cleanup service started")

	subscriberCtx, cancelSubscriber := context.WithCancel(context.Background())
	defer cancelSubscriber()
	services.StartRedisChatSubscriber(subscriberCtx)

	// Setup router
	r := chi.NewRouter()

	// Custom CORS: set headers and respond to OPTIONS with 200 so preflight never gets 403
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, per-IP + login rate limiting)")
	} else {
		r.Use(middleware.SecurityHeaders)
	}

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r)

	log.Printf("🚀 Teender backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
