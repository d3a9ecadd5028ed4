package orders

import "regexp"

// DefaultDosageFrequency is reported when no frequency keyword is found.
const DefaultDosageFrequency = "once daily"

type frequencyRule struct {
	pattern *regexp.Regexp
	label   string
}

// frequencyRules is checked in order; the first match wins. Named
// frequencies beat hour intervals, and lower frequencies beat higher ones.
var frequencyRules = []frequencyRule{
	{regexp.MustCompile(`(?i)\b(as needed|if needed|when needed|prn|sos)\b`), "as needed"},
	{regexp.MustCompile(`(?i)\b(twice (a day|daily)|two times (a day|daily)|2x daily|bid|bd)\b`), "twice daily"},
	{regexp.MustCompile(`(?i)\b(thrice (a day|daily)|three times (a day|daily)|3x daily|tid|tds)\b`), "thrice daily"},
	{regexp.MustCompile(`(?i)\b(four times (a day|daily)|4x daily|qid)\b`), "four times daily"},
	{regexp.MustCompile(`(?i)\bevery\s*12\s*h(ou)?rs?\b`), "twice daily"},
	{regexp.MustCompile(`(?i)\bevery\s*8\s*h(ou)?rs?\b`), "thrice daily"},
	{regexp.MustCompile(`(?i)\bevery\s*6\s*h(ou)?rs?\b`), "four times daily"},
	{regexp.MustCompile(`(?i)\b(once (a day|daily)|od|daily)\b|\bevery\s*24\s*h(ou)?rs?\b`), "once daily"},
}

// InferDosageFrequency scans free text for a dosing frequency keyword. The
// result annotates mirrored orders and is not medical advice.
func InferDosageFrequency(text string) string {
	for _, rule := range frequencyRules {
		if rule.pattern.MatchString(text) {
			return rule.label
		}
	}
	return DefaultDosageFrequency
}
