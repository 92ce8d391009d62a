// Package config handles loading and validating the solbox relay configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with SOLBOX_* environment variables
//   - Validation of required fields per selected sink
//   - Default value handling (including sink-dependent poll intervals)
//
// Security Considerations:
//   - Sorel credentials and sink tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("SOLBOX_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetPollInterval())
package config
