package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAdminURL = "http://localhost:8080"
	defaultTimeout  = 30 * time.Second
	defaultLimit    = 100

	kindSale   = "sale"
	kindRefund = "refund"
)

type config struct {
	baseURL    string
	token      string
	kind       string
	failed     bool
	limit      int
	timeout    time.Duration
	orderIDs   []string
	outputPath string
}

// resendOutcome — ответ admin API на повторную отправку одного заказа.
type resendOutcome struct {
	OrderID    string `json:"order_id"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	InvoiceID  string `json:"invoice_id,omitempty"`
	StoreID    string `json:"store_id,omitempty"`
	HTTPStatus int    `json:"http_status"`
	Error      string `json:"error,omitempty"`
}

type report struct {
	StartedAt time.Time       `json:"started_at"`
	Kind      string          `json:"kind"`
	Total     int             `json:"total"`
	Counts    map[string]int  `json:"counts"`
	Results   []resendOutcome `json:"results"`
}

func (r report) failedCount() int {
	return r.Counts["failed"] + r.Counts["error"]
}

type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	_ = godotenv.Load()

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	result, err := run(ctx, cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		fail("resend failed: %v", err)
	}
	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fail("write report: %v", err)
		}
	}
	if result.failedCount() > 0 {
		os.Exit(2)
	}
}

func parseConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	cfg := config{}
	fs.StringVar(&cfg.baseURL, "url", "", "posit-sync HTTP address (fallback: POSIT_ADMIN_URL, default "+defaultAdminURL+")")
	fs.StringVar(&cfg.token, "token", "", "admin bearer token (fallback: ADMIN_TOKEN)")
	fs.StringVar(&cfg.kind, "kind", kindSale, "what to resend: sale|refund")
	fs.BoolVar(&cfg.failed, "failed", false, "resend every order currently marked failed")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max number of failed orders to fetch with -failed")
	fs.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall timeout")
	fs.StringVar(&cfg.outputPath, "output", "", "optional path for a JSON report")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(cfg.baseURL) == "" {
		cfg.baseURL = getenv("POSIT_ADMIN_URL")
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		cfg.baseURL = defaultAdminURL
	}
	if strings.TrimSpace(cfg.token) == "" {
		cfg.token = getenv("ADMIN_TOKEN")
	}
	cfg.token = strings.TrimSpace(cfg.token)
	cfg.kind = strings.ToLower(strings.TrimSpace(cfg.kind))

	for _, id := range fs.Args() {
		if id = strings.TrimSpace(id); id != "" {
			cfg.orderIDs = append(cfg.orderIDs, id)
		}
	}

	switch {
	case cfg.token == "":
		return config{}, errors.New("admin token is required (-token or ADMIN_TOKEN)")
	case cfg.kind != kindSale && cfg.kind != kindRefund:
		return config{}, fmt.Errorf("unsupported kind %q (use sale|refund)", cfg.kind)
	case !cfg.failed && len(cfg.orderIDs) == 0:
		return config{}, errors.New("pass order ids or -failed")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	}
	if _, err := url.ParseRequestURI(cfg.baseURL); err != nil {
		return config{}, fmt.Errorf("invalid url %q: %w", cfg.baseURL, err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	client := adminClient{baseURL: cfg.baseURL, token: cfg.token, http: httpClient}
	result := report{StartedAt: time.Now().UTC(), Kind: cfg.kind, Counts: map[string]int{}}

	ids := append([]string(nil), cfg.orderIDs...)
	if cfg.failed {
		failed, err := client.failedOrders(ctx, cfg.limit)
		if err != nil {
			return result, err
		}
		ids = mergeIDs(ids, failed)
	}
	if len(ids) == 0 {
		log.Info("no failed orders to resend")
		return result, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := client.resend(ctx, cfg.kind, id)
		key := outcome.Outcome
		if outcome.Error != "" {
			key = "error"
		}
		result.Counts[key]++
		result.Results = append(result.Results, outcome)

		log.WithFields(log.Fields{
			"order_id": id,
			"outcome":  key,
			"status":   outcome.HTTPStatus,
		}).Info("resend finished")
	}
	result.Total = len(result.Results)
	return result, nil
}

func mergeIDs(explicit, failed []string) []string {
	seen := make(map[string]struct{}, len(explicit)+len(failed))
	merged := make([]string, 0, len(explicit)+len(failed))
	for _, id := range append(explicit, failed...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged
}

func (c adminClient) failedOrders(ctx context.Context, limit int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/admin/orders/failed?limit=%d", c.baseURL, limit)
	status, body, err := c.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list failed orders: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list failed orders: unexpected status %d: %s", status, errorText(body))
	}

	var payload struct {
		Orders []struct {
			ID string `json:"id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode failed orders: %w", err)
	}
	ids := make([]string, 0, len(payload.Orders))
	for _, order := range payload.Orders {
		ids = append(ids, order.ID)
	}
	return ids, nil
}

func (c adminClient) resend(ctx context.Context, kind, orderID string) resendOutcome {
	endpoint := fmt.Sprintf("%s/admin/orders/%s/resend-%s", c.baseURL, url.PathEscape(orderID), kind)
	outcome := resendOutcome{OrderID: orderID}

	status, body, err := c.do(ctx, http.MethodPost, endpoint)
	outcome.HTTPStatus = status
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	// 502 приходит вместе с телом результата, если POSIT отклонил документ.
	if status == http.StatusOK || status == http.StatusBadGateway {
		if err := json.Unmarshal(body, &outcome); err == nil && outcome.Outcome != "" {
			outcome.HTTPStatus = status
			return outcome
		}
	}
	outcome.Error = fmt.Sprintf("unexpected status %d: %s", status, errorText(body))
	return outcome
}

func (c adminClient) do(ctx context.Context, method, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorText(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintf(w, "resend %s: total=%d", result.Kind, result.Total)
	for _, key := range []string{"sent", "refunded", "skipped", "failed", "error"} {
		if n := result.Counts[key]; n > 0 {
			_, _ = fmt.Fprintf(w, " %s=%d", key, n)
		}
	}
	_, _ = fmt.Fprintln(w)

	for _, r := range result.Results {
		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(w, "  order %s: error: %s\n", r.OrderID, r.Error)
		case r.InvoiceID != "":
			_, _ = fmt.Fprintf(w, "  order %s: %s invoice=%s store=%s\n", r.OrderID, r.Outcome, r.InvoiceID, r.StoreID)
		case r.Reason != "":
			_, _ = fmt.Fprintf(w, "  order %s: %s (%s)\n", r.OrderID, r.Outcome, r.Reason)
		default:
			_, _ = fmt.Fprintf(w, "  order %s: %s\n", r.OrderID, r.Outcome)
		}
	}
}

func writeJSONReport(path string, result report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
