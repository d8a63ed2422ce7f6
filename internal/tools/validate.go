package tools

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/toolshelf/internal/storage"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxTags              = 20
	MaxTagLength         = 50
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type metadata struct {
	name        string
	description string
	tags        []string
}

func normalizeMetadata(name, description string, tags []string) (metadata, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return metadata{}, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return metadata{}, &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if hasControl(name, false) {
		return metadata{}, &ValidationError{Field: "name", Message: "must not contain control characters"}
	}

	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return metadata{}, &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	if hasControl(description, true) {
		return metadata{}, &ValidationError{Field: "description", Message: "must not contain control characters"}
	}

	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return metadata{}, &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %q is longer than %d characters", tag, MaxTagLength)}
		}
		if hasControl(tag, false) {
			return metadata{}, &ValidationError{Field: "tags", Message: "tags must not contain control characters"}
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return metadata{}, &ValidationError{Field: "tags", Message: fmt.Sprintf("at most %d tags allowed", MaxTags)}
	}

	return metadata{name: name, description: description, tags: out}, nil
}

func hasControl(s string, allowWhitespace bool) bool {
	for _, r := range s {
		if allowWhitespace && (r == '\n' || r == '\t' || r == '\r') {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func validToolType(t string) bool {
	return t == storage.ToolTypeHTML || t == storage.ToolTypeReact
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
