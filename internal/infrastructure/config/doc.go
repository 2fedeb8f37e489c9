// Package config handles loading and validating Fleet Telemetry Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file into the process environment (if present)
//   - Overriding with FLEET_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables or the .env file, not committed YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
