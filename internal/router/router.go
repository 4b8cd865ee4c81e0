package router

import (
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/config"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/handler"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/middleware"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/repository"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/service"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(200, time.Minute))

	// ── Repositories ─────────────────────────────────────────────────────────
	drawerRepo := repository.NewDrawerRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockMovementRepository(db)

	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	drawerSvc := service.NewDrawerService(drawerRepo, dispatcher)
	orderSvc := service.NewOrderService(orderRepo, productRepo, stockRepo, drawerSvc)
	syncSvc := service.NewSyncService(orderSvc, rdb, dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	drawerH := handler.NewDrawerHandler(drawerSvc)
	orderH := handler.NewOrderHandler(orderSvc, syncSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public — also the sync agent's connectivity probe
	r.GET("/health", handler.Health(db, rdb))

	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		anyRole := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin)
		supervise := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleAdmin)

		drawer := v1.Group("/drawer")
		{
			drawer.POST("/open", anyRole, drawerH.Open)
			drawer.POST("/close", anyRole, drawerH.Close)
			drawer.POST("/movement", anyRole, drawerH.Movement)
			drawer.GET("/active", anyRole, drawerH.Active)
			drawer.GET("/history", supervise, drawerH.History)
			drawer.GET("/:id/report", anyRole, drawerH.Report)
			drawer.GET("/:id/movements", anyRole, drawerH.Movements)
			drawer.GET("/:id/statistics", anyRole, drawerH.Statistics)
		}

		v1.POST("/orders", anyRole, orderH.Create)
		v1.DELETE("/orders/:id", supervise, orderH.Void)

		// Offline replay endpoint (sync agent / PWA queue drain)
		v1.POST("/orders/sync-batch", anyRole, orderH.SyncBatch)

		adminOnly := middleware.RequireRole(middleware.RoleAdmin)
		v1.POST("/admin/dlq/:queue/requeue", adminOnly, handler.RequeueDLQ(rdb))
	}

	return r
}
