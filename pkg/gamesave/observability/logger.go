// Package observability provides structured logging, metrics and tracing
// for the checkpoint engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds checkpoint context to a logger.
// Returns a new logger with episode_id and step_number fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "episode-1", 300)
//	enriched.Info("saving") // includes episode_id, step_number
func EnrichLogger(logger *slog.Logger, episodeID string, stepNumber int64) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("episode_id", episodeID),
		slog.Int64("step_number", stepNumber),
	)
}

// LogSaveStart logs the start of a checkpoint save.
func LogSaveStart(logger *slog.Logger, episodeID string, stepNumber int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint save starting",
		slog.String("episode_id", episodeID),
		slog.Int64("step_number", stepNumber),
	)
}

// LogCheckpointSaved logs a durable checkpoint write.
func LogCheckpointSaved(logger *slog.Logger, checkpointID, episodeID string, stepNumber, sizeBytes int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint saved",
		slog.String("checkpoint_id", checkpointID),
		slog.String("episode_id", episodeID),
		slog.Int64("step_number", stepNumber),
		slog.Int64("size_bytes", sizeBytes),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCaptureDegraded logs a best-effort capture step that failed.
// The checkpoint is still written with the affected field left empty.
func LogCaptureDegraded(logger *slog.Logger, episodeID, capability string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("capture degraded",
		slog.String("episode_id", episodeID),
		slog.String("capability", capability),
		slog.String("error", err.Error()),
	)
}

// LogSaveFailed logs a save that produced no checkpoint.
func LogSaveFailed(logger *slog.Logger, episodeID string, stepNumber int64, blobKey string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint save failed",
		slog.String("episode_id", episodeID),
		slog.Int64("step_number", stepNumber),
		slog.String("blob_key", blobKey),
		slog.String("error", err.Error()),
	)
}

// LogLoadFailed logs a load that returned nothing.
func LogLoadFailed(logger *slog.Logger, checkpointID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint load failed",
		slog.String("checkpoint_id", checkpointID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpointLoaded logs a successful load and whether engine state was
// applied to the game.
func LogCheckpointLoaded(logger *slog.Logger, checkpointID string, applied bool, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	msg := "checkpoint loaded"
	if !applied {
		level = slog.LevelWarn
		msg = "checkpoint loaded without restoring game state"
	}
	logger.Log(context.Background(), level, msg,
		slog.String("checkpoint_id", checkpointID),
		slog.Bool("applied", applied),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEviction logs a checkpoint removed by retention.
func LogEviction(logger *slog.Logger, checkpointID, episodeID string) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint evicted",
		slog.String("checkpoint_id", checkpointID),
		slog.String("episode_id", episodeID),
	)
}

// LogEvictionError logs a retention deletion that failed (non-fatal).
func LogEvictionError(logger *slog.Logger, checkpointID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint eviction failed",
		slog.String("checkpoint_id", checkpointID),
		slog.String("error", err.Error()),
	)
}

// LogCleanupFailed logs a retention pass that could not complete. The save
// that triggered it has already succeeded.
func LogCleanupFailed(logger *slog.Logger, episodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("retention cleanup failed",
		slog.String("episode_id", episodeID),
		slog.String("error", err.Error()),
	)
}

// LogFallbackStorage logs that a remote storage address is served from a
// local directory.
func LogFallbackStorage(logger *slog.Logger, address, root string) {
	if logger == nil {
		return
	}
	logger.Warn("remote storage not implemented, using local fallback",
		slog.String("address", address),
		slog.String("path", root),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
