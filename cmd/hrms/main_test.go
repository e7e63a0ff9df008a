package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/application"
	"github.com/example/hrms/internal/config"
	httptransport "github.com/example/hrms/internal/http"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	for _, key := range []string{"HRMS_CONFIG_FILE", "HRMS_SQLITE_PATH", "HRMS_SESSION_SECRET", "HRMS_UPLOAD_DIR", "HRMS_TIMEZONE", "HRMS_ADMIN_PASSWORD"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hrms.db")
	body := "sqlite_path: " + dbPath + "\n" +
		"session_secret: test-secret-with-enough-entropy\n" +
		"upload_dir: " + filepath.Join(dir, "uploads") + "\n"
	path := filepath.Join(dir, "hrms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dbPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		_, err := newLogger(io.Discard, level)
		assert.NoError(t, err, "level %q", level)
	}
	_, err := newLogger(io.Discard, "loud")
	assert.Error(t, err)
}

func TestMigrateAndCreateAdmin(t *testing.T) {
	configPath, dbPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", configPath, "migrate")
	require.NoError(t, err)
	assert.Regexp(t, "^applied ", out)

	out, err = runCommand(t, "--config", configPath, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 0")

	_, err = runCommand(t, "--config", configPath, "create-admin", "--email", "root@example.com")
	require.Error(t, err, "create-admin without a password")

	t.Setenv("HRMS_ADMIN_PASSWORD", "changeme123")
	out, err = runCommand(t, "--config", configPath, "create-admin", "--email", "Root@Example.com", "--name", "Root")
	require.NoError(t, err)
	assert.Contains(t, out, "created administrator root@example.com")

	_, err = runCommand(t, "--config", configPath, "create-admin", "--email", "root@example.com")
	require.Error(t, err, "duplicate administrator")

	cfg, err := config.LoadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.SQLitePath)

	storage, err := openStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer storage.Close()

	user, err := storage.Users.GetUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, application.RoleAdmin, user.Role)
	assert.True(t, user.Active)
}

func TestNewServicesRegistersEveryProcedure(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	cfg, err := config.LoadFile(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	storage, err := openStorage(ctx, cfg)
	require.NoError(t, err)
	defer storage.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services, err := newServices(cfg, storage, logger)
	require.NoError(t, err)

	registry := httptransport.NewProcedureRegistry(services)
	for _, name := range []string{
		"auth.login", "timeTracking.clockIn", "leaves.request", "forms.submit", "chat.send",
		"dashboard.employee", "projects.create", "notifications.list", "employees.list",
		"admin.generatePayroll", "meetings.create", "calendar.view",
	} {
		_, ok := registry.Lookup(name)
		assert.True(t, ok, "procedure %s is not registered", name)
	}
}
