//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flaretrack/apiserver/config"
	"github.com/flaretrack/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestSymptomTrackingLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	token, userID, err := registerUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}

	if err := promoteUserToAdmin(email); err != nil {
		t.Fatalf("promote user: %v", err)
	}

	item, err := createSymptom(t, baseURL, token, fmt.Sprintf("Brain Fog %d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("create symptom: %v", err)
	}
	if item.ID == 0 {
		t.Fatalf("expected symptom ID to be set")
	}

	if err := connectSymptom(t, baseURL, token, userID, item.ID); err != nil {
		t.Fatalf("connect symptom: %v", err)
	}

	rec, err := trackSymptom(t, baseURL, token, userID, item.ID, "2026-08-01", "8 AM-12 PM", 3)
	if err != nil {
		t.Fatalf("track symptom: %v", err)
	}
	if rec.Value != 3 {
		t.Fatalf("unexpected severity: %v", rec.Value)
	}

	day, err := getTrackingDay(t, baseURL, token, userID, "2026-08-01")
	if err != nil {
		t.Fatalf("get tracking day: %v", err)
	}
	if len(day) != 1 {
		t.Fatalf("expected 1 record for day, got %d", len(day))
	}
	if day[0].ItemName != item.Name {
		t.Fatalf("unexpected item name: %q", day[0].ItemName)
	}

	// A second entry for the same cell must be rejected.
	if _, err := trackSymptom(t, baseURL, token, userID, item.ID, "2026-08-01", "8 AM-12 PM", 4); err == nil {
		t.Fatalf("expected duplicate cell to be rejected")
	}

	edited, err := editSymptomSeverity(t, baseURL, token, userID, item.ID, "2026-08-01", "8 AM-12 PM", 5)
	if err != nil {
		t.Fatalf("edit severity: %v", err)
	}
	if edited.Value != 5 {
		t.Fatalf("unexpected edited severity: %v", edited.Value)
	}

	key, err := exportHistory(t, baseURL, token, userID)
	if err != nil {
		t.Fatalf("export history: %v", err)
	}
	if !strings.HasPrefix(key, fmt.Sprintf("exports/user-%d/", userID)) {
		t.Fatalf("unexpected export key: %q", key)
	}

	if err := deleteTrackingDay(t, baseURL, token, userID, "2026-08-01"); err != nil {
		t.Fatalf("delete tracking day: %v", err)
	}

	after, err := getTrackingDay(t, baseURL, token, userID, "2026-08-01")
	if err != nil {
		t.Fatalf("get tracking day after delete: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected empty day after delete, got %d records", len(after))
	}

	// Repointing the assignment to another catalog item carries the
	// tracking history along with it.
	second, err := createSymptom(t, baseURL, token, fmt.Sprintf("Light Sensitivity %d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("create second symptom: %v", err)
	}

	if _, err := trackSymptom(t, baseURL, token, userID, item.ID, "2026-08-03", "12-4 PM", 2); err != nil {
		t.Fatalf("track symptom before repoint: %v", err)
	}

	moved, err := changeSymptomAssignment(t, baseURL, token, userID, item.ID, second.ID)
	if err != nil {
		t.Fatalf("change assignment item: %v", err)
	}
	if moved.ItemID != second.ID {
		t.Fatalf("expected assignment on item %d, got %d", second.ID, moved.ItemID)
	}

	repointed, err := getTrackingDay(t, baseURL, token, userID, "2026-08-03")
	if err != nil {
		t.Fatalf("get tracking day after repoint: %v", err)
	}
	if len(repointed) != 1 {
		t.Fatalf("expected 1 record after repoint, got %d", len(repointed))
	}
	if repointed[0].ItemID != second.ID {
		t.Fatalf("expected record on item %d after repoint, got %d", second.ID, repointed[0].ItemID)
	}
	if repointed[0].ItemName != second.Name {
		t.Fatalf("expected record named %q after repoint, got %q", second.Name, repointed[0].ItemName)
	}

	// Disconnecting removes the assignment and its tracking history.
	if err := disconnectSymptom(t, baseURL, token, userID, second.ID); err != nil {
		t.Fatalf("disconnect symptom: %v", err)
	}

	gone, err := getTrackingDay(t, baseURL, token, userID, "2026-08-03")
	if err != nil {
		t.Fatalf("get tracking day after disconnect: %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("expected empty day after disconnect, got %d records", len(gone))
	}

	_, err = trackSymptom(t, baseURL, token, userID, second.ID, "2026-08-04", "4-8 PM", 1)
	if err == nil {
		t.Fatalf("expected tracking on a disconnected symptom to fail")
	}
	if !strings.Contains(err.Error(), "not associated") {
		t.Fatalf("unexpected tracking error after disconnect: %v", err)
	}
}

type itemResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type assignmentResponse struct {
	ItemID   int    `json:"item_id"`
	ItemName string `json:"item_name"`
}

type trackingRecordResponse struct {
	ID       int     `json:"id"`
	ItemID   int     `json:"item_id"`
	ItemName string  `json:"item_name"`
	Date     string  `json:"date"`
	Bucket   string  `json:"bucket"`
	Value    float64 `json:"value"`
}

type trackingListResponse struct {
	Records []trackingRecordResponse `json:"records"`
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID int `json:"id"`
	} `json:"user"`
}

func registerUser(t *testing.T, baseURL, email, password string) (string, int, error) {
	t.Helper()

	payload := map[string]string{
		"email":    email,
		"name":     "Test Admin",
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/register", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, err
	}
	if parsed.Token == "" {
		return "", 0, fmt.Errorf("missing token in register response")
	}
	if parsed.User.ID == 0 {
		return "", 0, fmt.Errorf("missing user id in register response")
	}
	return parsed.Token, parsed.User.ID, nil
}

func promoteUserToAdmin(email string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = db.ExecContext(ctx, "UPDATE users SET is_admin = TRUE WHERE email = $1", email)
	return err
}

func createSymptom(t *testing.T, baseURL, token, name string) (itemResponse, error) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return itemResponse{}, err
	}

	var parsed itemResponse
	if err := doJSON(token, http.MethodPost, baseURL+"/symptoms", body, http.StatusCreated, &parsed); err != nil {
		return itemResponse{}, err
	}
	return parsed, nil
}

func connectSymptom(t *testing.T, baseURL, token string, userID, itemID int) error {
	t.Helper()

	url := fmt.Sprintf("%s/symptoms/%d/users/%d", baseURL, itemID, userID)
	return doJSON(token, http.MethodPost, url, []byte("{}"), http.StatusCreated, nil)
}

func changeSymptomAssignment(t *testing.T, baseURL, token string, userID, oldItemID, newItemID int) (assignmentResponse, error) {
	t.Helper()

	body, err := json.Marshal(map[string]int{"new_item_id": newItemID})
	if err != nil {
		return assignmentResponse{}, err
	}

	url := fmt.Sprintf("%s/symptoms/%d/users/%d", baseURL, oldItemID, userID)
	var parsed assignmentResponse
	if err := doJSON(token, http.MethodPatch, url, body, http.StatusOK, &parsed); err != nil {
		return assignmentResponse{}, err
	}
	return parsed, nil
}

func disconnectSymptom(t *testing.T, baseURL, token string, userID, itemID int) error {
	t.Helper()

	url := fmt.Sprintf("%s/symptoms/%d/users/%d", baseURL, itemID, userID)
	return doJSON(token, http.MethodDelete, url, nil, http.StatusNoContent, nil)
}

func trackSymptom(t *testing.T, baseURL, token string, userID, itemID int, date, bucket string, severity int) (trackingRecordResponse, error) {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"item_id": itemID,
		"date":    date,
		"bucket":  bucket,
		"value":   severity,
	})
	if err != nil {
		return trackingRecordResponse{}, err
	}

	url := fmt.Sprintf("%s/symptoms/users/%d/tracking", baseURL, userID)
	var parsed trackingRecordResponse
	if err := doJSON(token, http.MethodPost, url, body, http.StatusCreated, &parsed); err != nil {
		return trackingRecordResponse{}, err
	}
	return parsed, nil
}

func editSymptomSeverity(t *testing.T, baseURL, token string, userID, itemID int, date, bucket string, severity int) (trackingRecordResponse, error) {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"item_id": itemID,
		"date":    date,
		"bucket":  bucket,
		"value":   severity,
	})
	if err != nil {
		return trackingRecordResponse{}, err
	}

	url := fmt.Sprintf("%s/symptoms/users/%d/tracking", baseURL, userID)
	var parsed trackingRecordResponse
	if err := doJSON(token, http.MethodPatch, url, body, http.StatusOK, &parsed); err != nil {
		return trackingRecordResponse{}, err
	}
	return parsed, nil
}

func getTrackingDay(t *testing.T, baseURL, token string, userID int, date string) ([]trackingRecordResponse, error) {
	t.Helper()

	url := fmt.Sprintf("%s/symptoms/users/%d/tracking/day?date=%s", baseURL, userID, date)
	var parsed trackingListResponse
	if err := doJSON(token, http.MethodGet, url, nil, http.StatusOK, &parsed); err != nil {
		return nil, err
	}
	return parsed.Records, nil
}

func deleteTrackingDay(t *testing.T, baseURL, token string, userID int, date string) error {
	t.Helper()

	url := fmt.Sprintf("%s/symptoms/users/%d/tracking/day?date=%s", baseURL, userID, date)
	return doJSON(token, http.MethodDelete, url, nil, http.StatusNoContent, nil)
}

func exportHistory(t *testing.T, baseURL, token string, userID int) (string, error) {
	t.Helper()

	url := fmt.Sprintf("%s/users/%d/export", baseURL, userID)
	var parsed struct {
		Key string `json:"key"`
	}
	if err := doJSON(token, http.MethodPost, url, nil, http.StatusCreated, &parsed); err != nil {
		return "", err
	}
	return parsed.Key, nil
}

func doJSON(token, method, url string, body []byte, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "flaretrack")
	_ = os.Setenv("DB_PASSWORD", "flaretrack")
	_ = os.Setenv("DB_NAME", "flaretrack_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "flaretrack-exports")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
