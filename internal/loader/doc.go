// Package loader fetches raw observations for a bounds stage and groups
// them into per-key series.
//
// Load fans out one request per org unit (each admitted by the remote gate),
// keeps only numeric data elements of the dataset (optionally narrowed by an
// explicit filter) and parses values. A failed org unit is logged and
// skipped; the remaining org units still contribute.
package loader
