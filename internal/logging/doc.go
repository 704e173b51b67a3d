// Package logging provides structured logging for agentsync.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation, so the interleaved activity of several agents sharing
// one store can be filtered after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers created
// via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/agentsync/agentsync.log", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("action stored", "status", "active")
//
// # Context Propagation
//
//	stageLogger := logger.WithAgent("kilo").WithStage("frontend_development")
//	stageLogger.Info("workflow stage started")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"workflow stage started","agent_id":"kilo","stage":"frontend_development"}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(path, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//
// Rotated files are named agentsync.log.1, agentsync.log.2, etc., where .1 is
// the most recent backup.
//
// # Testing
//
// Use [NopLogger] to discard all log output.
package logging
