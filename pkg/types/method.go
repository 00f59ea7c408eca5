package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Method is the closed set of bound computation methods.
type Method int

const (
	MethodUnknown Method = iota
	MethodConstant
	MethodPrevMax
	MethodZScore
	MethodMAD
	MethodIQR
	MethodBoxCox
)

var methodNames = map[Method]string{
	MethodConstant: "CONSTANT",
	MethodPrevMax:  "PREV_MAX",
	MethodZScore:   "ZSCORE",
	MethodMAD:      "MAD",
	MethodIQR:      "IQR",
	MethodBoxCox:   "BOXCOX",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseMethod maps a configuration name to a Method. Matching is
// case-insensitive; "PREVMAX" is accepted as an alias of PREV_MAX.
func ParseMethod(s string) (Method, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "PREVMAX" {
		return MethodPrevMax, nil
	}
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return MethodUnknown, fmt.Errorf("unknown method %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Method) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler so methods render by name
// in JSON and YAML output.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MethodBucket maps a median range to a method and its parameters. A series
// uses the first bucket (in ascending LimitMedian order) whose LimitMedian
// is strictly greater than the series median.
type MethodBucket struct {
	LimitMedian float64  `yaml:"limitMedian" json:"limitMedian"`
	Method      Method   `yaml:"method" json:"method"`
	Threshold   float64  `yaml:"threshold" json:"threshold"`
	ConstantMin *float64 `yaml:"constantMin,omitempty" json:"constantMin,omitempty"`
	ConstantMax *float64 `yaml:"constantMax,omitempty" json:"constantMax,omitempty"`
}
