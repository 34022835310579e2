// Package config handles loading and validating labrig configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The device list is consumed as an opaque sequence of {type, id, params}
// entries; the orchestrator performs no parameter parsing itself. Each
// driver extracts what it needs from its Params map.
//
// Security Considerations:
//   - Sensitive values (broker passwords, InfluxDB tokens) should be set
//     via environment variables rather than committed to the config file
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Session.ExperimentID)
package config
