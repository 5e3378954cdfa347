package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAdmin повторяет ответы admin API posit-sync.
type fakeAdmin struct {
	mu      sync.Mutex
	calls   []string
	failed  []string
	replies map[string]func(w http.ResponseWriter)
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer admin" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"admin token required"}`))
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.RequestURI())
	f.mu.Unlock()

	if r.Method == http.MethodGet && r.URL.Path == "/admin/orders/failed" {
		items := make([]map[string]string, 0, len(f.failed))
		for _, id := range f.failed {
			items = append(items, map[string]string{"id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": items, "count": len(items)})
		return
	}
	if reply, ok := f.replies[r.URL.Path]; ok {
		reply(w)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"order not found"}`))
}

func (f *fakeAdmin) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func jsonReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func parse(t *testing.T, args []string, env map[string]string) (config, error) {
	t.Helper()
	fs := flag.NewFlagSet("posit-resend", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseConfig(fs, args, func(key string) string { return env[key] })
}

func TestParseConfig(t *testing.T) {
	cfg, err := parse(t, []string{"-kind=REFUND", "501", " ", "502"}, map[string]string{
		"ADMIN_TOKEN":     " admin ",
		"POSIT_ADMIN_URL": "http://sync.local:8080/",
	})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.kind != kindRefund || cfg.token != "admin" || cfg.baseURL != "http://sync.local:8080" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.orderIDs) != 2 || cfg.orderIDs[0] != "501" || cfg.orderIDs[1] != "502" {
		t.Fatalf("unexpected order ids: %+v", cfg.orderIDs)
	}

	cfg, err = parse(t, []string{"-token=t", "-failed"}, nil)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.baseURL != defaultAdminURL || cfg.kind != kindSale || cfg.limit != defaultLimit {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"501"}, want: "admin token is required"},
		{args: []string{"-token=t", "-kind=void", "501"}, want: "unsupported kind"},
		{args: []string{"-token=t"}, want: "pass order ids or -failed"},
		{args: []string{"-token=t", "-failed", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-token=t", "-timeout=0s", "501"}, want: "timeout must be > 0"},
		{args: []string{"-token=t", "-url=::bad", "501"}, want: "invalid url"},
	}
	for _, tc := range cases {
		if _, err := parse(t, tc.args, nil); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("args %v: expected %q, got %v", tc.args, tc.want, err)
		}
	}
	if _, err := parse(t, []string{"-nope"}, nil); err == nil {
		t.Fatal("expected flag parse error")
	}
}

func TestRun_ExplicitOrders(t *testing.T) {
	admin := &fakeAdmin{replies: map[string]func(http.ResponseWriter){
		"/admin/orders/501/resend-sale": jsonReply(http.StatusOK, `{"order_id":"501","outcome":"sent","invoice_id":"9001","store_id":"3"}`),
		"/admin/orders/502/resend-sale": jsonReply(http.StatusBadGateway, `{"order_id":"502","outcome":"failed","reason":"posit rejected the document: bad sku"}`),
		"/admin/orders/503/resend-sale": jsonReply(http.StatusOK, `{"order_id":"503","outcome":"skipped","reason":"sale already sent"}`),
	}}
	srv := httptest.NewServer(admin)
	defer srv.Close()

	cfg := config{baseURL: srv.URL, token: "admin", kind: kindSale, orderIDs: []string{"501", "502", "503", "999"}, limit: 10}
	result, err := run(context.Background(), cfg, srv.Client())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Total != 4 {
		t.Fatalf("unexpected total: %+v", result)
	}
	if result.Counts["sent"] != 1 || result.Counts["failed"] != 1 || result.Counts["skipped"] != 1 || result.Counts["error"] != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}
	if result.failedCount() != 2 {
		t.Fatalf("failed and errored orders must be counted, got %d", result.failedCount())
	}
	if result.Results[0].InvoiceID != "9001" || result.Results[1].HTTPStatus != http.StatusBadGateway {
		t.Fatalf("unexpected results: %+v", result.Results)
	}
	if !strings.Contains(result.Results[3].Error, "order not found") {
		t.Fatalf("unknown order must carry the API error: %+v", result.Results[3])
	}

	var out bytes.Buffer
	printReport(&out, result)
	text := out.String()
	for _, want := range []string{
		"resend sale: total=4 sent=1 skipped=1 failed=1 error=1",
		"order 501: sent invoice=9001 store=3",
		"order 502: failed (posit rejected the document: bad sku)",
		"order 999: error:",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report must contain %q:\n%s", want, text)
		}
	}
}

func TestRun_FailedOrdersAreMergedWithExplicitIDs(t *testing.T) {
	admin := &fakeAdmin{
		failed: []string{"502", "504"},
		replies: map[string]func(http.ResponseWriter){
			"/admin/orders/502/resend-refund": jsonReply(http.StatusOK, `{"order_id":"502","outcome":"refunded"}`),
			"/admin/orders/504/resend-refund": jsonReply(http.StatusOK, `{"order_id":"504","outcome":"refunded"}`),
		},
	}
	srv := httptest.NewServer(admin)
	defer srv.Close()

	cfg := config{baseURL: srv.URL, token: "admin", kind: kindRefund, failed: true, limit: 25, orderIDs: []string{"502"}}
	result, err := run(context.Background(), cfg, srv.Client())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Total != 2 || result.Counts["refunded"] != 2 {
		t.Fatalf("unexpected report: %+v", result)
	}

	calls := admin.callLog()
	want := []string{
		"GET /admin/orders/failed?limit=25",
		"POST /admin/orders/502/resend-refund",
		"POST /admin/orders/504/resend-refund",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestRun_NoFailedOrders(t *testing.T) {
	srv := httptest.NewServer(&fakeAdmin{})
	defer srv.Close()

	result, err := run(context.Background(), config{baseURL: srv.URL, token: "admin", kind: kindSale, failed: true, limit: 5}, srv.Client())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Total != 0 || result.failedCount() != 0 {
		t.Fatalf("expected empty report, got %+v", result)
	}
}

func TestRun_ListFailedErrors(t *testing.T) {
	srv := httptest.NewServer(&fakeAdmin{})
	defer srv.Close()

	_, err := run(context.Background(), config{baseURL: srv.URL, token: "wrong", kind: kindSale, failed: true, limit: 5}, srv.Client())
	if err == nil || !strings.Contains(err.Error(), "admin token required") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	_, err = run(context.Background(), config{baseURL: garbage.URL, token: "admin", kind: kindSale, failed: true, limit: 5}, garbage.Client())
	if err == nil || !strings.Contains(err.Error(), "decode failed orders") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(&fakeAdmin{})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run(ctx, config{baseURL: srv.URL, token: "admin", kind: kindSale, orderIDs: []string{"501"}}, srv.Client())
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestMergeIDs(t *testing.T) {
	got := mergeIDs([]string{"1", "2"}, []string{"2", "3", "1"})
	if strings.Join(got, ",") != "1,2,3" {
		t.Fatalf("unexpected merge: %v", got)
	}
}

func TestErrorText(t *testing.T) {
	if got := errorText([]byte(`{"error":"boom"}`)); got != "boom" {
		t.Fatalf("unexpected error text: %q", got)
	}
	if got := errorText([]byte(" plain \n")); got != "plain" {
		t.Fatalf("unexpected error text: %q", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "resend.json")
	in := report{
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:      kindSale,
		Total:     1,
		Counts:    map[string]int{"sent": 1},
		Results:   []resendOutcome{{OrderID: "501", Outcome: "sent", HTTPStatus: 200}},
	}
	if err := writeJSONReport(path, in); err != nil {
		t.Fatalf("writeJSONReport failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var out report
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("report must be valid JSON: %v", err)
	}
	if out.Total != 1 || out.Results[0].OrderID != "501" {
		t.Fatalf("unexpected report: %+v", out)
	}
}

func TestMainExitsWithoutToken(t *testing.T) {
	if os.Getenv("RESEND_TEST_EXIT") == "1" {
		_ = os.Unsetenv("ADMIN_TOKEN")
		os.Args = []string{"posit-resend", "501"}
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainExitsWithoutToken")
	cmd.Env = append(os.Environ(), "RESEND_TEST_EXIT=1")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
}
