// Package period implements the platform's period identifiers (20240115,
// 2024W3, 202401, 2024Q1, 2024S1, 2024), the current/previous period window
// used by bound stages and the look-back durations ("12 months") used by
// count stages.
package period
