package routes

import (
	"github.com/MarkusAkitus/Teender/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *chi.Mux) {
	// Auth routes
	r.Post("/api/auth/signup", handlers.Signup)
	r.Post("/api/auth/signin", handlers.Signin)
	r.Post("/api/auth/signout", handlers.Signout)
	r.Get("/api/auth/me", handlers.GetMe)

	// Profile routes
	r.Put("/api/profile", handlers.UpdateProfile)
	r.Post("/api/upload", handlers.UploadAvatar)

	// Discovery and swiping
	r.Get("/api/discover", handlers.Discover)
	r.Post("/api/likes", handlers.Like)
	r.Post("/api/likes/pass", handlers.Pass)

	// Chat (MongoDB history + Redis Pub/Sub)
	r.Post("/api/messages", handlers.SendMessage)
	r.Get("/api/chat/history", handlers.LoadChatHistory)

	// WebSocket endpoint for realtime match chat
	r.Get("/ws/chat", handlers.ChatWebSocket)

	// Admin routes
	r.Get("/api/admin/alerts", handlers.GetAlerts)
	r.Get("/api/admin/security-events", handlers.GetSecurityEvents)
	r.Get("/api/admin/moderation-events", handlers.GetModerationEvents)
	r.Get("/api/admin/blocked-ips", handlers.GetBlockedIPs)
	r.Put("/api/admin/unblock-ip", handlers.UnblockIP)
	r.Put("/api/admin/lift-restriction", handlers.LiftRestriction)
	r.Post("/api/admin/replay-queue/drain", handlers.DrainReplayQueue)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
}
