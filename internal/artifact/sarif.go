package artifact

// sarifLog is the subset of SARIF 2.1.0 the engine reads (spec §4.7).
type sarifLog struct {
	Runs []struct {
		Results []struct {
			RuleID  string `json:"ruleId"`
			Level   string `json:"level"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			Locations []struct {
				PhysicalLocation struct {
					ArtifactLocation struct {
						URI string `json:"uri"`
					} `json:"artifactLocation"`
					Region struct {
						StartLine   int `json:"startLine"`
						StartColumn int `json:"startColumn"`
					} `json:"region"`
				} `json:"physicalLocation"`
			} `json:"locations"`
		} `json:"results"`
	} `json:"runs"`
}

func parseSARIF(data []byte) ([]Finding, error) {
	var log sarifLog
	if err := mustValidJSON(data, &log); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, run := range log.Runs {
		for _, r := range run.Results {
			f := Finding{
				RuleID:   r.RuleID,
				Message:  r.Message.Text,
				Severity: sarifSeverity(r.Level),
			}
			if len(r.Locations) > 0 {
				loc := r.Locations[0].PhysicalLocation
				if p, ok := NormalizePath(loc.ArtifactLocation.URI); ok {
					f.Path = p
				}
				f.Line = loc.Region.StartLine
				f.Column = loc.Region.StartColumn
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// sarifSeverity maps SARIF's level to the normalized severity (spec §4.7:
// error/warning/note/info/none). SARIF treats an absent level as "warning"
// by its own spec default, so that case is special-cased before falling
// through to the shared string-severity normalization.
func sarifSeverity(level string) Severity {
	if level == "" {
		return SeverityWarning
	}
	return NormalizeSeverityString(level)
}
