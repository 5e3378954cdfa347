package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
)

func (s *Server) requireAdmin() gin.HandlerFunc {
	expected := []byte("Bearer " + s.cfg.AdminToken)
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader("Authorization")))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "admin token required"})
			return
		}
		c.Next()
	}
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.deps.Orders.Get(c.Param("id"))
	if err != nil {
		s.respondStorageError(c, err)
		return
	}

	var notes []domain.OrderNote
	if s.deps.Notes != nil {
		notes, err = s.deps.Notes.List(order.ID)
		if err != nil {
			s.respondStorageError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, newOrderResponse(order, notes))
}

func (s *Server) listFailedOrders(c *gin.Context) {
	limit := defaultFailedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	orders, err := s.deps.Orders.ListByStatus(domain.OrderStatusFailed, limit)
	if err != nil {
		s.respondStorageError(c, err)
		return
	}

	items := make([]orderSummary, 0, len(orders))
	for _, order := range orders {
		items = append(items, newOrderSummary(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": items, "count": len(items)})
}

func (s *Server) resendSale(c *gin.Context) {
	s.resend(c, s.deps.Resender.SubmitSale)
}

func (s *Server) resendRefund(c *gin.Context) {
	s.resend(c, s.deps.Resender.SubmitRefund)
}

func (s *Server) resend(c *gin.Context, submit func(ctx context.Context, orderID string) (sales.Result, error)) {
	orderID := c.Param("id")
	result, err := submit(c.Request.Context(), orderID)
	if err != nil {
		s.respondStorageError(c, err)
		return
	}

	s.logger.WithField("order_id", orderID).WithField("outcome", result.Outcome).Info("manual resend finished")
	status := http.StatusOK
	if result.Outcome == sales.OutcomeFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, newResultResponse(result))
}

func (s *Server) syncInventory(c *gin.Context) {
	if s.deps.Inventory == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "inventory interface is disabled"})
		return
	}

	report, err := s.deps.Inventory.Run(c.Request.Context())
	resp := inventoryResponse{
		Fetched:   report.Fetched,
		Updated:   report.Updated,
		Unchanged: report.Unchanged,
		StartedAt: report.StartedAt,
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, domain.ErrConfigurationMissing):
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
	default:
		resp.Error = err.Error()
		c.JSON(http.StatusBadGateway, resp)
	}
}

func (s *Server) resetInventoryMarker(c *gin.Context) {
	if s.deps.Inventory == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "inventory interface is disabled"})
		return
	}
	if err := s.deps.Inventory.ResetMarker(); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	s.logger.Info("inventory marker reset, worker will reconcile on next start")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) respondStorageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrOrderIDRequired):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
