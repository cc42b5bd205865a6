package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/consult-backend/internal/config"
	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/http/handlers"
	"github.com/ignatzorin/consult-backend/internal/http/middleware"
	"github.com/ignatzorin/consult-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	bookingHandler *handlers.BookingHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	if wsHandler != nil {
		api.GET("/ws", wsHandler.Handle)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))

	// Мутирующие маршруты ограничены по пользователю
	mutating := protected.Group("/")
	mutating.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	mutating.POST("/bookings", bookingHandler.Create)
	protected.GET("/bookings/:id", middleware.UUIDValidator("id"), bookingHandler.Get)
	protected.GET("/bookings/:id/audit", middleware.UUIDValidator("id"), bookingHandler.Audit)

	bookings := mutating.Group("/bookings/:id")
	bookings.Use(middleware.UUIDValidator("id"))
	{
		bookings.POST("/accept", bookingHandler.Accept)
		bookings.POST("/decline", bookingHandler.Decline)
		bookings.POST("/cancel", bookingHandler.Cancel)
		bookings.POST("/reschedule", bookingHandler.RequestReschedule)
		bookings.POST("/reschedule/confirm", bookingHandler.ConfirmReschedule)
		bookings.POST("/reschedule/reject", bookingHandler.RejectReschedule)
		bookings.POST("/dispute", bookingHandler.OpenDispute)
		bookings.POST("/feedback", bookingHandler.SubmitFeedback)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(entity.RoleAdmin))
	{
		admin.POST("/bookings/:id/dispute/resolve", middleware.UUIDValidator("id"), bookingHandler.ResolveDispute)
	}

	return r
}
