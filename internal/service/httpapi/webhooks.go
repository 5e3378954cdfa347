package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
	"github.com/vladislavdragonenkov/positsync/internal/storefront"
)

const (
	headerSignature  = "X-WC-Webhook-Signature"
	headerDeliveryID = "X-WC-Webhook-Delivery-ID"

	rawBodyKey = "raw_body"
)

var webhookEvents = map[string]sales.EventType{
	"created":   sales.EventOrderCreated,
	"updated":   sales.EventOrderUpdated,
	"completed": sales.EventOrderCompleted,
	"cancelled": sales.EventOrderCancelled,
	"refunded":  sales.EventOrderRefunded,
}

// verifySignature читает тело, проверяет подпись витрины и кладёт тело в контекст.
// Ping при создании вебхука приходит формой webhook_id=N и подтверждается без обработки.
func (s *Server) verifySignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "request body is too large or unreadable"})
			return
		}

		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("webhook_id=")) {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{"status": "pong"})
			return
		}

		if s.cfg.WebhookSecret != "" && !validSignature(s.cfg.WebhookSecret, body, c.GetHeader(headerSignature)) {
			s.recordWebhook(webhookName(c), "unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid webhook signature"})
			return
		}

		c.Set(rawBodyKey, body)
		c.Next()
	}
}

func rawBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}

func webhookName(c *gin.Context) string {
	if name := c.Param("event"); name != "" {
		return name
	}
	return "product"
}

// Sign возвращает подпись тела в формате витрины: base64(HMAC-SHA256).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Server) handleOrderWebhook(c *gin.Context) {
	name := c.Param("event")
	eventType, ok := webhookEvents[name]
	if !ok {
		s.recordWebhook(name, "unknown_event")
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown order event " + name})
		return
	}

	body := rawBody(c)
	deliveryID := strings.TrimSpace(c.GetHeader(headerDeliveryID))

	s.withDelivery(c, name, deliveryID, body, func() (int, any) {
		return s.processOrder(c, name, eventType, body)
	})
}

func (s *Server) processOrder(c *gin.Context, name string, eventType sales.EventType, body []byte) (int, any) {
	payload, err := storefront.DecodeOrder(body)
	if err != nil {
		s.recordWebhook(name, "bad_request")
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	}
	order := payload.ToDomain()

	result, err := s.deps.Events.HandleOrderEvent(c.Request.Context(), sales.OrderEvent{Type: eventType, Order: order})
	if err != nil {
		if sales.IsInvalidEvent(err) {
			s.recordWebhook(name, "invalid")
			return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
		}
		s.recordWebhook(name, "error")
		_ = c.Error(err)
		s.logger.WithError(err).WithField("order_id", order.ID).Error("order webhook failed")
		return http.StatusInternalServerError, errorResponse{Error: "order event processing failed"}
	}

	s.recordWebhook(name, string(result.Outcome))
	return http.StatusOK, newResultResponse(result)
}

func (s *Server) handleProductWebhook(c *gin.Context) {
	body := rawBody(c)
	deliveryID := strings.TrimSpace(c.GetHeader(headerDeliveryID))

	s.withDelivery(c, "product", deliveryID, body, func() (int, any) {
		payload, err := storefront.DecodeProduct(body)
		if err != nil {
			s.recordWebhook("product", "bad_request")
			return http.StatusBadRequest, errorResponse{Error: err.Error()}
		}

		product := payload.ToDomain()
		if product.SKU == "" {
			// без SKU товар не сопоставить с остатками POSIT
			s.recordWebhook("product", "ignored")
			return http.StatusOK, gin.H{"status": "ignored", "product_id": product.ProductID}
		}
		if err := s.deps.Products.Upsert(product); err != nil {
			s.recordWebhook("product", "error")
			s.logger.WithError(err).WithField("sku", product.SKU).Error("product upsert failed")
			return http.StatusInternalServerError, errorResponse{Error: "product upsert failed"}
		}

		s.recordWebhook("product", "stored")
		return http.StatusOK, gin.H{"status": "stored", "sku": product.SKU}
	})
}

// withDelivery выполняет process не больше одного раза на delivery id.
// Повтор получает сохранённый ответ; повтор после 5xx обрабатывается заново.
func (s *Server) withDelivery(c *gin.Context, event, deliveryID string, body []byte, process func() (int, any)) {
	if deliveryID == "" || s.deps.Deliveries == nil {
		status, resp := process()
		c.JSON(status, resp)
		return
	}

	entry := s.logger.WithFields(log.Fields{"delivery_id": deliveryID, "event": event})
	hash := payloadHash(event, body)

	record, err := s.deps.Deliveries.CreateProcessing(deliveryID, hash, s.now().Add(s.cfg.DeliveryTTL))
	if err != nil {
		if !s.replayDelivery(c, event, record, err, entry) {
			return
		}
	}

	status, resp := process()
	encoded, encErr := json.Marshal(resp)
	if encErr != nil {
		entry.WithError(encErr).Warn("failed to encode webhook response for replay")
	}

	if status >= 400 {
		err = s.deps.Deliveries.MarkFailed(deliveryID, encoded, status)
	} else {
		err = s.deps.Deliveries.MarkDone(deliveryID, encoded, status)
	}
	if err != nil {
		entry.WithError(err).Warn("failed to store webhook delivery result")
	}

	c.Data(status, "application/json; charset=utf-8", encoded)
}

// replayDelivery отвечает на повторную доставку. true означает, что запрос нужно обработать заново.
func (s *Server) replayDelivery(c *gin.Context, event string, record domain.WebhookDelivery, createErr error, entry *log.Entry) bool {
	switch {
	case errors.Is(createErr, domain.ErrDeliveryHashMismatch):
		s.recordWebhook(event, "conflict")
		c.JSON(http.StatusConflict, errorResponse{Error: "delivery id is already used with a different payload"})
		return false
	case errors.Is(createErr, domain.ErrDeliveryAlreadyExists):
		switch record.Status {
		case domain.DeliveryStatusDone:
			s.recordWebhook(event, "replayed")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			return false
		case domain.DeliveryStatusProcessing:
			s.recordWebhook(event, "in_progress")
			c.JSON(http.StatusConflict, errorResponse{Error: "delivery is already being processed"})
			return false
		case domain.DeliveryStatusFailed:
			if record.HTTPStatus >= 500 {
				entry.Info("redelivery after server error, processing again")
				return true
			}
			s.recordWebhook(event, "replayed")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			return false
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "unknown delivery status"})
		return false
	default:
		entry.WithError(createErr).Error("failed to register webhook delivery")
		s.recordWebhook(event, "error")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to register delivery"})
		return false
	}
}

func payloadHash(event string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(event))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
