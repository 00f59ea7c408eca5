package types

import "fmt"

// DefaultCategoryOptionCombo is the platform's built-in "default" category
// option combo, used when a value carries no disaggregation.
const DefaultCategoryOptionCombo = "HllvX50cXC0"

// MetricKey identifies one time series: an organisation unit, a metric
// (data element) and a category option combo.
type MetricKey struct {
	OrgUnit             string `json:"orgUnit"`
	Metric              string `json:"dataElement"`
	CategoryOptionCombo string `json:"categoryOptionCombo"`
}

func (k MetricKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OrgUnit, k.Metric, k.CategoryOptionCombo)
}

// Observation is one raw numeric value for a key in a period.
type Observation struct {
	Key    MetricKey
	Period string
	Value  float64
}

// Series is the ordered list of values observed for one key.
type Series []float64

// FactKey identifies a SyncRecord on the remote store.
type FactKey struct {
	Metric              string
	OrgUnit             string
	Period              string
	CategoryOptionCombo string
}

// Less orders keys by metric, org unit, period, then category option combo.
func (k FactKey) Less(o FactKey) bool {
	if k.Metric != o.Metric {
		return k.Metric < o.Metric
	}
	if k.OrgUnit != o.OrgUnit {
		return k.OrgUnit < o.OrgUnit
	}
	if k.Period != o.Period {
		return k.Period < o.Period
	}
	return k.CategoryOptionCombo < o.CategoryOptionCombo
}
