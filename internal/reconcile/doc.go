// Package reconcile computes the upserts and deletions that bring the
// remote fact store in line with freshly computed facts.
package reconcile
