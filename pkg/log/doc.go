// Package log provides the structured logging used across flume.
//
// Loggers are constructed explicitly and passed by dependency injection;
// there is no process-wide singleton. Fields are attached with the Field
// API:
//
//	logger := log.NewLogger(log.WithLevel(log.DebugLevel))
//	logger = logger.With(log.Component("receiver"))
//	logger.Debug("scheduling fetch", log.Str("stream", name), log.Int64("demand", n))
//
// Output defaults to human-readable text on stderr; a JSON formatter is
// available for machine consumption.
package log
