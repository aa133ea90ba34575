package diagnostics

import "net/url"

// SanitizeURL strips s's query string, if s parses as a URL, replacing it
// with "[QUERY]" so secrets embedded in source URLs (API tokens in query
// params are common on filter-list mirrors) never reach logs or
// diagnostic events. Non-URL strings are returned unchanged.
func SanitizeURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.RawQuery == "" {
		return s
	}
	u.RawQuery = "[QUERY]"
	return u.String()
}
