package artifact

// eslintFileResult is one entry of ESLint's JSON formatter output.
type eslintFileResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"` // 1 = warning, 2 = error
		Message  string `json:"message"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
	} `json:"messages"`
}

func parseESLintJSON(data []byte) ([]Finding, error) {
	var results []eslintFileResult
	if err := mustValidJSON(data, &results); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, file := range results {
		normalizedPath, _ := NormalizePath(file.FilePath)
		for _, m := range file.Messages {
			findings = append(findings, Finding{
				RuleID:   m.RuleID,
				Message:  m.Message,
				Path:     normalizedPath,
				Line:     m.Line,
				Column:   m.Column,
				Severity: NormalizeSeverityNumeric(m.Severity),
			})
		}
	}
	return findings, nil
}
