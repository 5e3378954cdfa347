package posit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
	"github.com/vladislavdragonenkov/positsync/internal/service/invoice"
)

func testDocument(t *testing.T) invoice.Document {
	t.Helper()
	order := domain.Order{
		ID:     "77",
		Number: "77",
		Status: domain.OrderStatusCompleted,
		Lines: []domain.OrderLine{
			{ID: "1", ProductID: "p", SKU: "A", Quantity: 1, Subtotal: decimal.NewFromInt(10), Total: decimal.NewFromInt(10)},
		},
		Totals: domain.Totals{Total: decimal.NewFromInt(10)},
	}
	doc, err := invoice.Build(order, "POS-1", "133337", invoice.InvoiceTypeDebit)
	require.NoError(t, err)
	return doc
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	return NewClient(Config{TenantURL: srv.URL, APIKey: "secret"}, opts...)
}

func TestSubmitSale_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sales", r.URL.Path)
		assert.Equal(t, "Token token=secret", r.Header.Get("Authorization"))
		assert.Equal(t, "positsync/dev", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		assert.Contains(t, payload, "sales")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":[{"store_id":3,"invoice":"9001","message":"Sale created"}]}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	client := newTestClient(srv, WithMetrics(metrics.NewSyncMetricsWithRegisterer(reg)))

	ack, err := client.SubmitSale(context.Background(), testDocument(t))
	require.NoError(t, err)
	require.Equal(t, "9001", ack.InvoiceID)
	require.Equal(t, "3", ack.StoreID)
	require.Equal(t, "Sale created", ack.Message)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestSubmitSale_TenantWithTrailingSlash(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"success":true,"message":[{"store_id":"1","invoice":"2","message":"ok"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{TenantURL: srv.URL + "/", APIKey: "secret"}, WithHTTPClient(srv.Client()))
	_, err := client.SubmitSale(context.Background(), testDocument(t))
	require.NoError(t, err)
	require.Equal(t, "/api/sales", path)
}

func TestSubmitSale_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "remote rejected",
			status:  http.StatusOK,
			body:    `{"success":false,"message":[{"message":"Invalid POS"}]}`,
			wantErr: domain.ErrRemoteRejected,
		},
		{
			name:    "rejected with string message",
			status:  http.StatusUnprocessableEntity,
			body:    `{"success":false,"message":"Bad token"}`,
			wantErr: domain.ErrRemoteRejected,
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: domain.ErrMalformedResponse,
		},
		{
			name:    "success field missing",
			status:  http.StatusOK,
			body:    `{"message":[]}`,
			wantErr: domain.ErrMalformedResponse,
		},
		{
			name:    "message of unexpected type",
			status:  http.StatusOK,
			body:    `{"success":true,"message":42}`,
			wantErr: domain.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).SubmitSale(context.Background(), testDocument(t))
			require.ErrorIs(t, err, tt.wantErr)
			require.True(t, domain.IsRemoteFailure(err))
		})
	}
}

func TestSubmitSale_RejectedMessageIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":[{"message":"Duplicate external id"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SubmitSale(context.Background(), testDocument(t))
	require.ErrorContains(t, err, "Duplicate external id")
}

func TestSubmitSale_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{TenantURL: srv.URL, APIKey: "secret", Timeout: 50 * time.Millisecond})
	_, err := client.SubmitSale(context.Background(), testDocument(t))
	require.ErrorIs(t, err, domain.ErrTransport)
	require.True(t, IsTimeout(err))
}

func TestSubmitSale_NotConfigured(t *testing.T) {
	client := NewClient(Config{TenantURL: "", APIKey: "secret"})
	require.False(t, client.Configured())

	_, err := client.SubmitSale(context.Background(), testDocument(t))
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestFetchInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/inventory", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Token token=secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"response":[
			{"code":"A","store_inventory":50,"company_inventory":"120"},
			{"code":1234,"store_inventory":"7.0","company_inventory":null},
			{"code":"","store_inventory":1,"company_inventory":1}
		]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv).FetchInventory(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.InventoryItem{
		{SKU: "A", Store: 50, Company: 120},
		{SKU: "1234", Store: 7, Company: 0},
	}, items)
}

func TestFetchInventory_EmptyAndErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr error
	}{
		{name: "empty response", status: http.StatusOK, body: `{"response":[]}`},
		{name: "no response field", status: http.StatusOK, body: `{}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: domain.ErrRemoteRejected},
		{name: "bad quantity", status: http.StatusOK, body: `{"response":[{"code":"A","store_inventory":"many"}]}`, wantErr: domain.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			items, err := newTestClient(srv).FetchInventory(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, items, tt.wantLen)
		})
	}
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":[]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{TenantURL: srv.URL, APIKey: "secret", RequestsPerSecond: 0.001, Burst: 1}, WithHTTPClient(srv.Client()))
	_, err := client.FetchInventory(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.FetchInventory(ctx)
	require.ErrorIs(t, err, domain.ErrTransport)
}
