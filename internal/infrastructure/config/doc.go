// Package config handles loading and validating telemetry core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (TELEMETRY_*)
//   - Validation of required fields, consumer policies and backends
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Ingress credentials are stored as Argon2id hashes, never in plain text
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Router.PublishTimeout)
package config
