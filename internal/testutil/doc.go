// Package testutil contains helpers used across tests to drain event
// streams and assert on their shape (type order, per-source sequencing,
// terminal events). These helpers are intentionally minimal and avoid
// adding third-party dependencies. They are not intended for production
// usage.
package testutil
