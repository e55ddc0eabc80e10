// internal/router/router.go
package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/handlers"
	"github.com/javajoker/keyshop-bot/internal/middleware"
	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

// Dependencies are the services exposed over the ops API.
type Dependencies struct {
	DB         *gorm.DB
	Products   *services.ProductService
	Tickets    *services.TicketService
	Events     *services.EventService
	Reputation *services.ReputationService
}

// Initialize builds the ops API engine. The returned limiter must be
// stopped on shutdown.
func Initialize(cfg *config.Config, deps Dependencies) (*gin.Engine, *utils.KeyedLimiter) {
	healthHandler := handlers.NewHealthHandler(deps.DB)
	productHandler := handlers.NewProductHandler(deps.Products)
	sellerHandler := handlers.NewSellerHandler(deps.Reputation)
	adminHandler := handlers.NewAdminHandler(deps.Tickets, deps.Events)

	limiter := utils.NewKeyedLimiter(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimit(limiter))
	{
		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:id", productHandler.GetProduct)
		}

		sellers := v1.Group("/sellers")
		{
			sellers.GET("/:id/reputation", sellerHandler.GetReputation)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/tickets", adminHandler.ListTickets)
			admin.GET("/tickets/:id", adminHandler.GetTicket)
			admin.POST("/tickets/:id/force-close", adminHandler.ForceClose)
		}
	}

	return r, limiter
}
