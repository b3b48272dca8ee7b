package policy

import "regexp"

type piiRule struct {
	kind    string
	pattern *regexp.Regexp
	mask    string
}

// Card numbers are matched before phones so long digit runs are not classified as phone numbers.
var piiRules = []piiRule{
	{kind: "email", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), mask: "[REDACTED_EMAIL]"},
	{kind: "card", pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), mask: "[REDACTED_CARD]"},
	{kind: "phone", pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), mask: "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns in transcript text.
func RedactPII(input string) (redacted string, changed bool) {
	out, kinds := RedactPIIKinds(input)
	return out, len(kinds) > 0
}

// RedactPIIKinds masks PII and reports which categories were found, in rule order.
func RedactPIIKinds(input string) (string, []string) {
	out := input
	var kinds []string
	for _, rule := range piiRules {
		next := rule.pattern.ReplaceAllString(out, rule.mask)
		if next != out {
			kinds = append(kinds, rule.kind)
		}
		out = next
	}
	return out, kinds
}
