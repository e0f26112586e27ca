// Package config handles loading and validating grow controller configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GROW_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling
//
// The device inventory is a separate resource; this package only records
// where to find it (inventory.path). See package device for its format.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/grow.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Control.Interval)
package config
