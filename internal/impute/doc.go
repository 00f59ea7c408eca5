// Package impute fills key combinations that have no computed bounds with
// the stage's default envelope.
package impute
