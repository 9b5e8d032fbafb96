package extract

import (
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s\])<>,"'|]+`)

// A URL with any of these is a registration link.
var registrationMarkers = []string{
	"forms.gle", "form", "neopat", "apply", "registration", "career", "register",
}

// A URL with any of these is never the company website.
var websiteExclusions = []string{
	"group", "form", "registration", "neopat", "apply", "career", "register", "attachment",
}

// Links scans text for URLs and returns the registration links (deduplicated,
// in order of appearance) and the first URL that looks like a plain website.
func Links(text string) (registration []string, website string) {
	seen := make(map[string]bool)
	for _, raw := range urlRe.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".;")
		lower := strings.ToLower(u)

		if containsAny(lower, registrationMarkers) {
			if !seen[u] {
				seen[u] = true
				registration = append(registration, u)
			}
			continue
		}
		if website == "" && !containsAny(lower, websiteExclusions) {
			website = u
		}
	}
	return registration, website
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
