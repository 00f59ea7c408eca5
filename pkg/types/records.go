package types

// Envelope is a closed integer interval [Min, Max].
type Envelope struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the envelope.
func (e Envelope) Contains(v float64) bool {
	return v >= float64(e.Min) && v <= float64(e.Max)
}

// BoundsRecord is the computed plausibility envelope for one key.
//
// A nil Bounds is the null envelope: the key is known but no bounds could be
// derived. Records with Generated=false always carry Bounds with Min <= Max.
type BoundsRecord struct {
	Key       MetricKey `json:"key"`
	Bounds    *Envelope `json:"bounds,omitempty"`
	Generated bool      `json:"generated"`
	Comment   string    `json:"comment,omitempty"`
	Method    Method    `json:"method"`

	// Fallback is set when a statistical method was replaced by PREV_MAX.
	Fallback bool `json:"fallback,omitempty"`
	// NarrowWarning is set when an observed value lies outside Bounds.
	NarrowWarning bool `json:"narrowWarning,omitempty"`
}

// SyncRecord is one computed or stored fact.
type SyncRecord struct {
	Metric              string  `json:"dataElement"`
	OrgUnit             string  `json:"orgUnit"`
	Period              string  `json:"period"`
	CategoryOptionCombo string  `json:"categoryOptionCombo"`
	Value               float64 `json:"value"`
}

// Key returns the record identity with defaultCOC substituted when the
// record has no category option combo.
func (r SyncRecord) Key(defaultCOC string) FactKey {
	coc := r.CategoryOptionCombo
	if coc == "" {
		coc = defaultCOC
	}
	return FactKey{
		Metric:              r.Metric,
		OrgUnit:             r.OrgUnit,
		Period:              r.Period,
		CategoryOptionCombo: coc,
	}
}
