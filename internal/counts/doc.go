// Package counts turns platform analyses into per-(org unit, period) count
// facts written to a destination data element.
//
// Validation rule violations and outlier detection are counted per analysed
// org unit subtree, one concurrent task each; a task failure is logged and
// reported in Outcome.Failed so the caller can keep the stored facts of that
// subtree untouched.
//
// Metadata integrity checks are different: one summary run covers the whole
// instance, and each check count goes to its own data element, found through
// the "MI_<check code>" code convention, at the root org unit for the current
// period.
package counts
