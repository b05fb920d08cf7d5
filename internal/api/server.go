package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"eventcart/internal/auth"
	"eventcart/internal/cache"
	"eventcart/internal/config"
	"eventcart/internal/database"
	"eventcart/internal/external"
	"eventcart/internal/handlers"
	"eventcart/internal/messaging"
	"eventcart/internal/metrics"
	"eventcart/internal/middleware"
	"eventcart/internal/models"
	"eventcart/internal/notify"
	"eventcart/internal/repository"
	"eventcart/internal/repository/memory"
	"eventcart/internal/search"
	"eventcart/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	store    repository.Store
	db       *database.DB
	nats     *messaging.NATSClient
	cache    *cache.ValkeyClient
	index    service.EventIndex
	services *service.Services
	payments handlers.PaymentWebhook
	tokens   *auth.TokenManager
}

// OpenStore открывает хранилище по STORE_DRIVER. db is nil for the memory store.
func OpenStore(cfg *config.Config) (repository.Store, *database.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		slog.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repository.NewPostgresStore(db), db, nil
}

// Dependencies are the external clients a server is built from.
type Dependencies struct {
	Store    repository.Store
	DB       *database.DB
	NATS     *messaging.NATSClient
	Cache    *cache.ValkeyClient
	Index    service.EventIndex
	Notifier service.Notifier
	Payments interface {
		service.PaymentGateway
		handlers.PaymentWebhook
	}
	Now func() time.Time
}

// NewServer создает новый экземпляр сервера, подключаясь ко всем внешним системам
func NewServer(cfg *config.Config) (*Server, error) {
	store, db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	deps := Dependencies{
		Store:    store,
		DB:       db,
		NATS:     natsClient,
		Payments: external.NewPaymentClient(cfg.Payment),
	}

	// Почта: напрямую через SMTP или через очередь для процесса consumers
	if cfg.SMTP.Queue && natsClient.Connected() {
		deps.Notifier = notify.NewQueue(natsClient)
	} else {
		deps.Notifier = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
	}

	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			// поиск продолжит работать по базе
			slog.Error("Elasticsearch unavailable, searching the store directly", "error", err)
		} else {
			deps.Index = es
		}
	}

	if cfg.Cache.Enabled {
		vc, err := cache.NewValkeyClient(cfg.Cache)
		if err != nil {
			slog.Error("Valkey unavailable, search cache disabled", "error", err)
		} else {
			deps.Cache = vc
		}
	}

	server := NewServerWithDeps(cfg, deps)

	if cfg.Admin.Username != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.services.Accounts.BootstrapAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			server.Cleanup()
			return nil, fmt.Errorf("failed to create admin account: %w", err)
		}
	}

	return server, nil
}

// NewServerWithDeps собирает сервер из готовых зависимостей. Used by tests.
func NewServerWithDeps(cfg *config.Config, deps Dependencies) *Server {
	gin.SetMode(cfg.GinMode)
	metrics.Register()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if deps.Now != nil {
		tokens = tokens.WithClock(deps.Now)
	}

	sd := service.Deps{
		Store:          deps.Store,
		Notifier:       deps.Notifier,
		Gateway:        deps.Payments,
		Tokens:         tokens,
		Now:            deps.Now,
		GatewayTimeout: cfg.Payment.Timeout,
		CheckoutExpiry: cfg.Checkout.ExpireAfter,
	}
	if deps.NATS != nil {
		sd.Publisher = deps.NATS
	}
	// nil pointers must not end up inside the interfaces
	if deps.Index != nil {
		sd.Index = deps.Index
	}
	if deps.Cache != nil {
		sd.Cache = deps.Cache
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	server := &Server{
		router:   router,
		config:   cfg,
		store:    deps.Store,
		db:       deps.DB,
		nats:     deps.NATS,
		cache:    deps.Cache,
		index:    sd.Index,
		services: service.NewServices(sd),
		payments: deps.Payments,
		tokens:   tokens,
	}

	server.setupRoutes()

	return server
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services, s.payments)
	authed := middleware.RequireAuth(s.tokens)

	// Регистрация и вход без токена
	authGroup := s.router.Group("/auth")
	{
		authGroup.POST("/clients/register", h.RegisterClient)
		authGroup.POST("/clients/login", h.LoginClient)
		authGroup.POST("/clients/:clientId/verify", h.VerifyClient)
		authGroup.POST("/clients/:clientId/verification-code", h.ResendVerification)
		authGroup.POST("/password/recovery-code", h.RequestRecoveryCode)
		authGroup.POST("/password/recover", h.RecoverPassword)
		authGroup.POST("/admins/login", h.LoginAdmin)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	events := s.router.Group("/events", authed)
	{
		events.GET("", h.SearchEvents)
		events.GET("/:eventId", h.GetEvent)
	}

	cart := s.router.Group("/cart/:clientId", authed, middleware.RequireSelf("clientId"))
	{
		cart.GET("", h.GetCart)
		cart.POST("/reserve", h.Reserve)
		cart.POST("/cancel", h.Cancel)
		cart.POST("/coupon", h.ApplyCoupon)
		cart.DELETE("/coupon", h.RemoveCoupon)
		cart.POST("/checkout", h.Checkout)
	}

	clients := s.router.Group("/clients/:clientId", authed, middleware.RequireSelf("clientId"))
	{
		clients.GET("", h.GetClient)
		clients.PUT("", h.UpdateClient)
		clients.DELETE("", h.DeactivateClient)
		clients.GET("/purchases", h.ListPurchases)
	}

	admin := s.router.Group("/admin", authed, middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/events", h.CreateEvent)
		admin.PUT("/events/:eventId", h.UpdateEvent)
		admin.DELETE("/events/:eventId", h.DeleteEvent)
		admin.DELETE("/events", h.DeleteAllEvents)

		// администратор меняет и удаляет только свою учётную запись
		admin.PUT("/admins/:adminId", middleware.RequireAdminSelf("adminId"), h.UpdateAdmin)
		admin.DELETE("/admins/:adminId", middleware.RequireAdminSelf("adminId"), h.DeleteAdmin)

		admin.GET("/coupons", h.ListCoupons)
		admin.POST("/coupons", h.CreateCoupon)
		admin.DELETE("/coupons", h.DeleteAllCoupons)
		admin.GET("/coupons/:name", h.GetCoupon)
		admin.PUT("/coupons/:name", h.UpdateCoupon)
		admin.DELETE("/coupons/:name", h.DeleteCoupon)

		admin.POST("/carts/:clientId/reset", h.ResetCart)
	}

	// Подпись проверяет сам обработчик
	s.router.POST("/payments/webhook", h.PaymentWebhook)

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"service": "eventcart-api",
		"store":   s.config.StoreDriver,
		"nats":    s.nats != nil && s.nats.Connected(),
	}

	if s.db != nil {
		hc := s.db.HealthCheck(c.Request.Context())
		resp["database"] = hc
		if len(hc.Warnings) > 0 {
			slog.Warn("Connection pool under pressure", "warnings", hc.Warnings)
		}
		if hc.Status != "healthy" {
			resp["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	// поиск деградирует до базы, поэтому ошибка индекса не делает сервис unhealthy
	if checker, ok := s.index.(interface{ HealthCheck(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := checker.HealthCheck(ctx); err != nil {
			resp["search"] = err.Error()
		} else {
			resp["search"] = "healthy"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Services exposes the business layer to sibling binaries and tests.
func (s *Server) Services() *service.Services {
	return s.services
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
			return err
		}
	}

	return nil
}
