// Package logging installs the process-wide slog logger.
package logging
