package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  enabled: true
  path: "/tmp/history.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9090
devices:
  - id: kitchen-light
    name: Kitchen Light
    category: light-onoff
  - id: kettle
    name: Kettle
    category: outlet
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if !cfg.Database.Enabled || cfg.Database.Path != "/tmp/history.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.TopicPrefix != "smarthome" {
		t.Errorf("MQTT.TopicPrefix = %q, want default smarthome", cfg.MQTT.TopicPrefix)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[0].Category != "light-onoff" || cfg.Devices[1].Name != "Kettle" {
		t.Errorf("Devices = %+v", cfg.Devices)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	path := writeConfig(t, "site:\n  id: home\n")
	t.Setenv("SMARTHOME_API_PORT", "eighty")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "SMARTHOME_API_PORT") {
		t.Errorf("Load() error = %v, want SMARTHOME_API_PORT parse error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Devices = []DeviceConfig{{ID: "a", Name: "A", Category: "switch"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{
			name:    "enabled database without path",
			mutate:  func(c *Config) { c.Database.Enabled = true; c.Database.Path = "" },
			wantErr: "database.path",
		},
		{name: "disabled database without path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{
			name:    "wildcard topic prefix",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "home/#" },
			wantErr: "mqtt.topic_prefix",
		},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Org = "o"; c.InfluxDB.Bucket = "b" },
			wantErr: "influxdb.url",
		},
		{
			name:    "device without id",
			mutate:  func(c *Config) { c.Devices = append(c.Devices, DeviceConfig{Category: "switch"}) },
			wantErr: "devices[1].id is required",
		},
		{
			name:    "duplicate device id",
			mutate:  func(c *Config) { c.Devices = append(c.Devices, DeviceConfig{ID: "a", Category: "outlet"}) },
			wantErr: "duplicated",
		},
		{
			name:    "device without category",
			mutate:  func(c *Config) { c.Devices[0].Category = "" },
			wantErr: "devices[0].category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Database: DatabaseConfig{RetentionDays: 2},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetRetention().Hours(); got != 48 {
		t.Errorf("GetRetention() = %v hours, want 48", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SMARTHOME_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SMARTHOME_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SMARTHOME_MQTT_USERNAME", "testuser")
	t.Setenv("SMARTHOME_MQTT_PASSWORD", "testpass")
	t.Setenv("SMARTHOME_API_HOST", "192.168.1.1")
	t.Setenv("SMARTHOME_API_PORT", "9000")
	t.Setenv("SMARTHOME_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SMARTHOME_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 9000},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig().Validate() error = %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Database.Enabled || cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}
