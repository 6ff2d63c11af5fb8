package extractor

import "strings"

// MatchKeywords reports whether a product title passes the configured
// keyword filters. With no include keywords every title passes. Include
// keywords use OR logic (at least one must appear); exclude keywords use
// AND logic (none may appear). Matching is case-insensitive.
func MatchKeywords(title string, include, exclude []string) bool {
	lower := strings.ToLower(title)

	for _, kw := range exclude {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, kw := range include {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
