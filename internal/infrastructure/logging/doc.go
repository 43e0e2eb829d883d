// Package logging provides structured logging for the smart-home service.
//
// It wraps log/slog with JSON output for production, text output for
// development, and default service/version fields on every entry.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device registered", "device_id", id)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
