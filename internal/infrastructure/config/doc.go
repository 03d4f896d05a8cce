// Package config handles loading and validating HomeHub Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HOMEHUB_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords, Hue usernames and JWT secrets should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.KV.Backend, cfg.CommandTimeout())
package config
