// Package config handles loading and validating the service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SMARTHOME_* environment variables
//   - Validation of required fields and the startup device list
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
