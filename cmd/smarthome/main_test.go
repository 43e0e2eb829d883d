package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SMARTHOME_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_ValidationError(t *testing.T) {
	writeConfig(t, `
site:
  id: ""
api:
  port: 0
`)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail validation")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("error = %v, want both site.id and api.port reported", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", "/custom/config.yaml")
	if got := getConfigPath(); got != "/custom/config.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/custom/config.yaml")
	}
}

// TestRun_StartupAndShutdown runs the service with SQLite history and
// configured devices, drives it over HTTP and cancels it.
func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	writeConfig(t, fmt.Sprintf(`
site:
  id: test-site
database:
  enabled: true
  path: %q
  retention_days: 7
logging:
  level: error
  format: text
  output: stdout
api:
  host: "127.0.0.1"
  port: %d
devices:
  - id: lamp
    name: Desk Lamp
    category: light-dimmable
`, dbPath, port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	client := &http.Client{Timeout: time.Second}

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = client.Get(base + "/health")
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never became ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	req, _ := http.NewRequest(http.MethodPut, base+"/devices/lamp/state", strings.NewReader(`{"brightness": 10}`)) //nolint:errcheck // constant request
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("set state status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, err = client.Get(base + "/devices/states?ids=lamp")
	if err != nil {
		t.Fatalf("GET states: %v", err)
	}
	var body struct {
		Devices map[string]map[string]any `json:"devices"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		t.Fatalf("decode: %v", decodeErr)
	}
	resp.Body.Close()
	if body.Devices["lamp"]["brightness"] != float64(10) {
		t.Errorf("brightness = %v, want 10", body.Devices["lamp"]["brightness"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("history database not created: %v", statErr)
	}
}

// TestRun_MQTTUnavailable verifies startup fails when the broker cannot be
// reached.
func TestRun_MQTTUnavailable(t *testing.T) {
	writeConfig(t, fmt.Sprintf(`
site:
  id: test-site
mqtt:
  enabled: true
  broker:
    host: "127.0.0.1"
    port: %d
logging:
  level: error
api:
  port: %d
`, freePort(t), freePort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT connection failure", err)
	}
}
