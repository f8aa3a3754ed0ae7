package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter outputs a Report as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAMLFormatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Format encodes the Report with two-space indentation.
func (f *YAMLFormatter) Format(report *Report) ([]byte, error) {
	report.stamp()
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
