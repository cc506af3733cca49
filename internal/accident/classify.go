package accident

// severityCodes maps the numeric sev property to a severity.
var severityCodes = map[int]Severity{
	0: SeverityDamageOnly,
	1: SeveritySlight,
	2: SeveritySerious,
	3: SeverityFatal,
}

// Classify returns the severity of a record. It never fails.
//
// An explicit label wins and is returned verbatim. Otherwise a numeric code is
// mapped, unknown codes becoming DamageOnly. Otherwise the casualty counts
// decide, the most harmful non-zero count winning.
func Classify(r Record) Severity {
	if r.SeverityLabel != "" {
		return Severity(r.SeverityLabel)
	}

	if r.SeverityCode != nil {
		if s, ok := severityCodes[*r.SeverityCode]; ok {
			return s
		}
		return SeverityDamageOnly
	}

	severity := SeverityDamageOnly
	if r.Slight > 0 {
		severity = SeveritySlight
	}
	if r.Serious > 0 {
		severity = SeveritySerious
	}
	if r.Fatal > 0 {
		severity = SeverityFatal
	}
	return severity
}
