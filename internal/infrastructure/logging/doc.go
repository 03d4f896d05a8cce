// Package logging provides structured logging for HomeHub Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	mqttLog := logger.Component("mqtt")
//	mqttLog.Warn("connection lost", "error", err)
//
// Never log broker passwords, Hue usernames or JWT secrets.
package logging
