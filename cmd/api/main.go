package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "crm/api/swagger" // swagger docs
	"crm/internal/cache"
	"crm/internal/config"
	"crm/internal/database"
	"crm/internal/handler"
	"crm/internal/logger"
	"crm/internal/metrics"
	"crm/internal/middleware"
	"crm/internal/model"
	"crm/internal/pricing"
	"crm/internal/repository"
	"crm/internal/service"
	"crm/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Quote Pricing & Approval API
// @version         1.0
// @description     Quote pricing, approval workflow and pricing rule management.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("Migration failed", zap.Error(err))
	}
	zlog.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	tm := repository.NewTransactionManager(db)
	roleRepo := repository.NewRoleRepository(db)
	if err := database.SeedRoles(ctx, tm, roleRepo, cfg.Approval.OverrideRole); err != nil {
		zlog.Fatal("Seeding roles failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Warn("Redis unavailable, pricing rules are read from the database", zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}

	rec := metrics.New()

	wsHub := websocket.NewHub(256, zlog, rec)
	go wsHub.Run(ctx)

	// Repositories
	quoteRepo := repository.NewQuoteRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	productRepo := repository.NewProductRepository(db)
	ruleRepo := repository.NewPricingRuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Services
	auditSink := service.NewAsyncAuditSink(auditRepo, cfg.Audit.BufferSize, zlog, rec)
	auditSink.Start()
	defer auditSink.Stop()

	catalog := service.NewRuleCatalog(ruleRepo, redisClient, cfg.Redis.RuleCacheTTL, zlog)
	numbering := service.NewNumberingService(tm, repository.NewNumberRangeRepository(db),
		map[string]string{model.DocTypeQuote: cfg.Pricing.QuotePrefix}, rec)
	identities := service.NewIdentityResolver(userRepo, cfg.Approval.OverrideRole)

	quoteService := service.NewQuoteService(service.QuoteDeps{
		TM:        tm,
		Quotes:    quoteRepo,
		Partners:  partnerRepo,
		Products:  productRepo,
		Catalog:   catalog,
		Numbering: numbering,
		Customers: service.NewCustomerPolicy(partnerRepo),
		Engine:    pricing.NewEngine(pricing.WithTaxRate(cfg.Pricing.TaxRate), pricing.WithScale(cfg.Pricing.Scale)),
		Audit:     auditSink,
		Notifier:  wsHub,
		Metrics:   rec,
		Log:       zlog,
	})
	approvalService := service.NewApprovalService(service.ApprovalDeps{
		TM:        tm,
		Quotes:    quoteRepo,
		Approvals: repository.NewApprovalRepository(db),
		Audit:     auditSink,
		Notifier:  wsHub,
		Metrics:   rec,
		Log:       zlog,
	})
	ruleService := service.NewPricingRuleService(ruleRepo, catalog, auditSink, zlog)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(quoteRepo)

	auth := middleware.NewAuth([]byte(cfg.JWT.Secret), roleRepo, cfg.Approval.OverrideRole)

	// Handlers
	quoteHandler := handler.NewQuoteHandler(quoteService, identities)
	approvalHandler := handler.NewApprovalHandler(approvalService, identities)
	ruleHandler := handler.NewPricingRuleHandler(ruleService, identities)
	auditHandler := handler.NewAuditHandler(auditService, identities)
	statisticsHandler := handler.NewStatisticsHandler(statisticsService, identities)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(zlog), logger.Recovery(zlog))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(rec.Handler()))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(ctx, wsHub, c, auth.Secret())
	})

	api := router.Group("")
	quoteHandler.RegisterRoutes(api, auth)
	approvalHandler.RegisterRoutes(api, auth)
	ruleHandler.RegisterRoutes(api, auth)
	auditHandler.RegisterRoutes(api, auth)
	statisticsHandler.RegisterRoutes(api, auth)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	zlog.Info("Server exited")
}
