package posit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
	"github.com/vladislavdragonenkov/positsync/internal/service/invoice"
	"github.com/vladislavdragonenkov/positsync/internal/version"
)

const (
	// Таймаут отправки чека.
	DefaultTimeout = 10 * time.Second

	salesPath     = "api/sales"
	inventoryPath = "api/inventory"

	// maxResponseSize ограничивает чтение ответа: снимок остатков бывает большим.
	maxResponseSize = 16 * 1024 * 1024
	logBodyLimit    = 200
)

// Config — параметры подключения к тенанту POSIT.
type Config struct {
	TenantURL string
	APIKey    string
	Timeout   time.Duration
	// RequestsPerSecond <= 0 отключает ограничение частоты.
	RequestsPerSecond float64
	Burst             int
}

// Client ходит в POSIT API по HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Entry
	metrics    *metrics.SyncMetrics
}

// Option настраивает клиента.
type Option func(*Client)

// WithHTTPClient подменяет HTTP клиента (используется в тестах).
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithMetrics включает запись длительности запросов.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(client *Client) {
		client.metrics = m
	}
}

// NewClient создаёт клиента. Пустые APIKey или TenantURL допустимы: Configured вернёт false.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &Client{
		baseURL:    normalizeTenant(cfg.TenantURL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New().WithField("component", "posit-client"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// normalizeTenant приводит адрес тенанта к виду с завершающим слешем.
func normalizeTenant(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return ""
	}
	return strings.TrimRight(tenant, "/") + "/"
}

// Configured сообщает, заданы ли ключ и адрес тенанта.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// SubmitSale отправляет документ продажи или возврата.
func (c *Client) SubmitSale(ctx context.Context, doc invoice.Document) (domain.SaleAck, error) {
	if !c.Configured() {
		return domain.SaleAck{}, domain.ErrConfigurationMissing
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return domain.SaleAck{}, fmt.Errorf("marshal sale document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+salesPath, bytes.NewReader(body))
	if err != nil {
		return domain.SaleAck{}, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	status, raw, err := c.do(ctx, "sales", req)
	if err != nil {
		return domain.SaleAck{}, err
	}

	ack, err := parseSaleResponse(raw)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"http_status": status,
			"body":        truncate(raw, logBodyLimit),
		}).Warn("posit sale response rejected")
		return domain.SaleAck{}, err
	}
	return ack, nil
}

// FetchInventory загружает полный снимок остатков. Пустой ответ не является ошибкой.
func (c *Client) FetchInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	if !c.Configured() {
		return nil, domain.ErrConfigurationMissing
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+inventoryPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	c.authorize(req)

	status, raw, err := c.do(ctx, "inventory", req)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(log.Fields{
		"http_status": status,
		"body":        truncate(raw, logBodyLimit),
	}).Debug("posit inventory fetched")

	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: inventory endpoint returned %d", domain.ErrRemoteRejected, status)
	}
	return parseInventoryResponse(raw)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token token="+c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())
}

// do выполняет запрос и читает тело ответа. Сетевые ошибки и таймауты оборачиваются в ErrTransport.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request) (int, []byte, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordRequest(endpoint, outcome, time.Since(start))
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrTransport, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("posit request failed")
		return 0, nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}
	outcome = outcomeLabel(resp.StatusCode)
	return resp.StatusCode, raw, nil
}

func outcomeLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "ok"
	}
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit])
}

// IsTimeout сообщает, что отправка прервана по таймауту.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
