package artifact

// ruffEntry is one entry of `ruff check --output-format json`.
type ruffEntry struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
}

func parseRuffJSON(data []byte) ([]Finding, error) {
	var entries []ruffEntry
	if err := mustValidJSON(data, &entries); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(entries))
	for _, e := range entries {
		normalizedPath, _ := NormalizePath(e.Filename)
		findings = append(findings, Finding{
			RuleID:   e.Code,
			Message:  e.Message,
			Path:     normalizedPath,
			Line:     e.Location.Row,
			Column:   e.Location.Column,
			Severity: SeverityError,
		})
	}
	return findings, nil
}
