// Package logging provides structured logging for montage runs.
//
// It wraps log/slog with a JSON handler and adds context propagation for
// the identifiers that matter when reading a run back: the run ID, the
// topic being negotiated and the generation request being executed.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/session", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithRun("run-1234")
//	runLogger.WithTopic("visual_style").Info("topic resolved", "score", 0.8)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"topic resolved","run_id":"run-1234","topic":"visual_style","score":0.8}
//
// # Log Rotation
//
// [NewLoggerWithRotation] writes through a [RotatingWriter] that rolls
// montage.log over to montage.log.1 .. montage.log.N once it grows past
// MaxSizeMB.
//
// # Testing
//
// Components default to [NopLogger] when no logger is supplied.
package logging
