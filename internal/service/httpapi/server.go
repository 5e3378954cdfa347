package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
	"github.com/vladislavdragonenkov/positsync/internal/service/inventory"
	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
)

const (
	defaultDeliveryTTL = 24 * time.Hour
	maxBodyBytes       = 2 << 20
	defaultFailedLimit = 100
)

// EventHandler принимает события заказов витрины.
type EventHandler interface {
	HandleOrderEvent(ctx context.Context, event sales.OrderEvent) (sales.Result, error)
}

// Resender — ручная повторная отправка, единственный путь повтора после сбоя.
type Resender interface {
	SubmitSale(ctx context.Context, orderID string) (sales.Result, error)
	SubmitRefund(ctx context.Context, orderID string) (sales.Result, error)
}

// InventorySyncer запускает сверку остатков по запросу оператора.
type InventorySyncer interface {
	Run(ctx context.Context) (inventory.Report, error)
	// ResetMarker помечает остатки устаревшими: воркер сверит их сразу после старта.
	ResetMarker() error
}

// Config задаёт секреты входящих запросов.
type Config struct {
	// Секрет подписи вебхуков витрины; пустой отключает проверку.
	WebhookSecret string
	// Bearer-токен административных ручек; пустой отключает их.
	AdminToken  string
	DeliveryTTL time.Duration
}

// Dependencies — сервисы и хранилища, с которыми работают ручки.
type Dependencies struct {
	Events     EventHandler
	Resender   Resender
	Inventory  InventorySyncer
	Orders     domain.OrderRepository
	Notes      domain.NoteRepository
	Products   domain.ProductRepository
	Deliveries domain.DeliveryRepository
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает счётчики вебхуков.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server обслуживает вебхуки витрины и административные ручки.
type Server struct {
	cfg     Config
	deps    Dependencies
	logger  *log.Entry
	metrics *metrics.WorkerMetrics
	now     func() time.Time
}

// NewServer создаёт обработчики.
func NewServer(cfg Config, deps Dependencies, opts ...Option) *Server {
	if cfg.DeliveryTTL <= 0 {
		cfg.DeliveryTTL = defaultDeliveryTTL
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithField("component", "http-api"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router собирает gin-маршруты.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.recovery(), s.requestLogger())

	webhooks := router.Group("/webhooks", s.verifySignature())
	webhooks.POST("/orders/:event", s.handleOrderWebhook)
	webhooks.POST("/products", s.handleProductWebhook)

	if s.cfg.AdminToken != "" {
		admin := router.Group("/admin", s.requireAdmin())
		admin.GET("/orders/failed", s.listFailedOrders)
		admin.GET("/orders/:id", s.getOrder)
		admin.POST("/orders/:id/resend-sale", s.resendSale)
		admin.POST("/orders/:id/resend-refund", s.resendRefund)
		admin.POST("/inventory/sync", s.syncInventory)
		admin.POST("/inventory/reset", s.resetInventoryMarker)
	} else {
		s.logger.Warn("admin token is empty, admin api disabled")
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("http request")
		case status >= 400:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(log.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  r,
				}).Error("panic recovered")
				c.AbortWithStatusJSON(500, errorResponse{Error: "internal error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) recordWebhook(event, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhook(event, outcome)
	}
}
