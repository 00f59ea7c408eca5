// Package config loads and watches the dqsync configuration file.
//
// Top-level types:
//   - Config: server, upload, completeness_threshold, min_max_stages,
//     analyzer_stages, logging, schedule, status, history, metrics, notify
//   - ServerConfig: remote base URL, auth, concurrency gate size, request
//     timeout, bulk endpoint switches
//   - MinMaxStage: datasets, org unit selection, data element filters, period
//     window and the method bucket table for bound computation
//   - AnalyzerStage: validation rule or outlier count stages written back to a
//     destination data element
//
// Load(path) reads the YAML file, applies defaults, normalises stages (bucket
// order, per-stage defaults) and validates the result. Struct-level rules use
// go-playground/validator; cross-field rules are collected with go-multierror
// so every problem is reported in one error.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on change.
package config
