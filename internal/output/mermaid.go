package output

// MermaidFormatter writes only the diagram markup, or the plain text of a
// free-text result.
type MermaidFormatter struct{}

// NewMermaidFormatter creates a new MermaidFormatter.
func NewMermaidFormatter() *MermaidFormatter {
	return &MermaidFormatter{}
}

// Format returns the raw markup.
func (f *MermaidFormatter) Format(report *Report) ([]byte, error) {
	switch {
	case report.Diagram != nil:
		return []byte(report.Diagram.Markup), nil
	case report.Result != nil:
		return []byte(report.Result.Text + "\n"), nil
	}
	return nil, nil
}
