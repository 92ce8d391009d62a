// Package logging provides structured logging for the solbox relay.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated log files via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file, both
//	  file:
//	    path: "/data/solbox.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 5
//
// The --log command line flag is applied with WithFile and switches the
// output to "both".
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("cycle complete", "delivered", 4)
//
// # Security
//
// Never log Sorel passwords, session cookies, or sink tokens.
package logging
