package permissions

import (
	"fmt"
	"strings"
)

// Wildcard is the only pattern metacharacter. It is valid solely as the final
// character of a resource pattern.
const Wildcard = "*"

// MatchResource reports whether a concrete resource identifier falls under a
// pattern. A pattern ending in "*" matches every resource starting with the
// text before the star; a bare "*" matches everything; any other pattern
// matches only the identical resource.
func MatchResource(pattern, resource string) bool {
	if prefix, ok := strings.CutSuffix(pattern, Wildcard); ok {
		return strings.HasPrefix(resource, prefix)
	}
	return pattern == resource
}

// MatchAnyResource reports whether any of the patterns covers the resource.
func MatchAnyResource(patterns []string, resource string) bool {
	for _, pattern := range patterns {
		if MatchResource(pattern, resource) {
			return true
		}
	}
	return false
}

// ValidateResourcePattern rejects empty patterns and stars that are not the
// final character. Patterns such as "client:*:invoice" would otherwise read as
// a mid-string wildcard while matching literally.
func ValidateResourcePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("resource pattern is empty")
	}
	if pattern != strings.TrimSpace(pattern) {
		return fmt.Errorf("resource pattern %q has surrounding whitespace", pattern)
	}
	if idx := strings.Index(pattern, Wildcard); idx != -1 && idx != len(pattern)-1 {
		return fmt.Errorf("resource pattern %q: wildcard is only allowed as the last character", pattern)
	}
	return nil
}

// ValidateResource checks a concrete resource identifier from an evaluation
// request. A star in a request is taken literally, so "client:*" names the
// client collection and is covered by the "client:*" and "*" patterns only.
func ValidateResource(resource string) error {
	if strings.TrimSpace(resource) == "" {
		return fmt.Errorf("resource is empty")
	}
	return nil
}
