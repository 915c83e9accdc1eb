// Package logging provides a minimal logging interface and adapters for
// Troupe.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that loops, coordinators and stores use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TroupeLogger with contextual helpers (component, source, session)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	tr := troupe.New(troupe.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
