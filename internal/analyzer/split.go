package analyzer

import "strings"

// SplitTexts splits pasted input into separate texts on newlines, commas and
// pipes. Blank entries are dropped.
func SplitTexts(raw string) []string {
	return split(raw, func(r rune) bool {
		return r == '\n' || r == ',' || r == '|'
	})
}

// SplitURLs splits pasted input into one URL per line.
func SplitURLs(raw string) []string {
	return split(raw, func(r rune) bool { return r == '\n' })
}

func split(raw string, sep func(rune) bool) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
