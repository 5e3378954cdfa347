package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/storage/postgres"
)

type stubMigrator struct {
	upSteps   []int
	downSteps []int
	upErr     error
	statusErr error
	status    postgres.MigrationStatus
	closed    bool
}

func (s *stubMigrator) MigrateUp(_ context.Context, steps int) error {
	s.upSteps = append(s.upSteps, steps)
	return s.upErr
}

func (s *stubMigrator) MigrateDown(_ context.Context, steps int) error {
	s.downSteps = append(s.downSteps, steps)
	return nil
}

func (s *stubMigrator) Status(context.Context) (postgres.MigrationStatus, error) {
	return s.status, s.statusErr
}

func (s *stubMigrator) Close() error {
	s.closed = true
	return nil
}

func withStubStore(t *testing.T, store *stubMigrator, openErr error) *string {
	t.Helper()
	var gotDSN string
	old := openStore
	openStore = func(_ context.Context, dsn string) (migrator, error) {
		gotDSN = dsn
		if openErr != nil {
			return nil, openErr
		}
		return store, nil
	}
	t.Cleanup(func() { openStore = old })
	return &gotDSN
}

func runCLI(args []string, env map[string]string) (string, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var out bytes.Buffer
	err := run(context.Background(), fs, args, func(key string) string { return env[key] }, &out)
	return out.String(), err
}

func TestRun_Status(t *testing.T) {
	store := &stubMigrator{status: postgres.MigrationStatus{Version: 2, Applied: 2, Pending: []string{"0003_delivery_cleanup"}}}
	withStubStore(t, store, nil)

	out, err := runCLI([]string{"-direction=status", "-dsn=postgres://local"}, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "migration status: version=2 applied=2 pending=1") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "pending 0003_delivery_cleanup") {
		t.Fatalf("pending migration must be listed: %q", out)
	}
	if len(store.upSteps) != 0 || len(store.downSteps) != 0 {
		t.Fatal("status must not migrate")
	}
	if !store.closed {
		t.Fatal("store must be closed")
	}
}

func TestRun_UpUsesDSNFromEnv(t *testing.T) {
	store := &stubMigrator{status: postgres.MigrationStatus{Version: 3, Applied: 3}}
	dsn := withStubStore(t, store, nil)

	out, err := runCLI([]string{"-steps=2"}, map[string]string{envPostgresDSN: " postgres://env "})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if *dsn != "postgres://env" {
		t.Fatalf("expected dsn from env, got %q", *dsn)
	}
	if len(store.upSteps) != 1 || store.upSteps[0] != 2 {
		t.Fatalf("unexpected up calls: %+v", store.upSteps)
	}
	if !strings.HasPrefix(out, "migrate up ok: version=3") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRun_DownDefaultsToOneStep(t *testing.T) {
	store := &stubMigrator{}
	withStubStore(t, store, nil)

	if _, err := runCLI([]string{"-direction= DOWN ", "-dsn=postgres://local"}, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(store.downSteps) != 1 || store.downSteps[0] != 1 {
		t.Fatalf("unexpected down calls: %+v", store.downSteps)
	}
}

func TestRun_Errors(t *testing.T) {
	withStubStore(t, &stubMigrator{}, nil)
	if _, err := runCLI([]string{"-direction=status"}, nil); err == nil || !strings.Contains(err.Error(), envPostgresDSN) {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
	if _, err := runCLI([]string{"-direction=sideways", "-dsn=x"}, nil); err == nil || !strings.Contains(err.Error(), "unsupported direction") {
		t.Fatalf("expected direction error, got %v", err)
	}
	if _, err := runCLI([]string{"-bogus"}, nil); err == nil {
		t.Fatal("expected flag parse error")
	}

	withStubStore(t, nil, errors.New("connection refused"))
	if _, err := runCLI([]string{"-dsn=x"}, nil); err == nil || !strings.Contains(err.Error(), "open postgres store") {
		t.Fatalf("expected open error, got %v", err)
	}

	failing := &stubMigrator{upErr: errors.New("syntax error")}
	withStubStore(t, failing, nil)
	if _, err := runCLI([]string{"-dsn=x"}, nil); err == nil || !strings.Contains(err.Error(), "migrate up failed") {
		t.Fatalf("expected migrate error, got %v", err)
	}
	if !failing.closed {
		t.Fatal("store must be closed after a failed migration")
	}

	withStubStore(t, &stubMigrator{statusErr: errors.New("timeout")}, nil)
	if _, err := runCLI([]string{"-direction=status", "-dsn=x"}, nil); err == nil || !strings.Contains(err.Error(), "migration status failed") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRun_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("POSIT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := postgres.Open(ctx, dsn, postgres.PoolConfig{})
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	_ = store.Close()

	for _, args := range [][]string{
		{"-direction=up", "-dsn=" + dsn},
		{"-direction=status", "-dsn=" + dsn},
		{"-direction=down", "-steps=1", "-dsn=" + dsn},
		{"-direction=up", "-dsn=" + dsn},
	} {
		if _, err := runCLI(args, nil); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
}

func TestMainMissingDSNExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_EXIT") == "1" {
		_ = os.Unsetenv(envPostgresDSN)
		os.Args = []string{"migrate", "-direction=status", "-dsn="}
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainMissingDSNExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
