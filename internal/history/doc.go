// Package history persists run summaries in SQLite.
package history
