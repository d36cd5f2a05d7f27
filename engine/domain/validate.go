package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinContentLen is the minimum trimmed atom content length.
	MinContentLen = 50
	// MaxTitleLen is the maximum atom title length.
	MaxTitleLen = 300
)

// atomIDRegex constrains atom ids to the slug alphabet.
var atomIDRegex = regexp.MustCompile(`^[a-z0-9_:-]+$`)

// ValidationResult reports whether an atom passed and, if not, why.
type ValidationResult struct {
	Passed bool
	Reason string
}

// ValidateAtom applies the atom acceptance rules. Pure function: no I/O,
// no mutation of the atom.
func ValidateAtom(a Atom, sourceURL string) ValidationResult {
	if err := validateAtom(a, sourceURL); err != nil {
		return ValidationResult{Passed: false, Reason: err.Error()}
	}
	return ValidationResult{Passed: true}
}

func validateAtom(a Atom, sourceURL string) error {
	if a.AtomID == "" {
		return NewValidationError("atom_id", a.AtomID, ErrMissingField)
	}
	if !atomIDRegex.MatchString(a.AtomID) {
		return NewValidationError("atom_id", a.AtomID, ErrBadAtomID)
	}
	if strings.TrimSpace(a.Title) == "" {
		return NewValidationError("title", a.Title, ErrMissingField)
	}
	if utf8.RuneCountInString(a.Title) > MaxTitleLen {
		return NewValidationError("title", truncate(a.Title, 40), ErrTitleTooLong)
	}
	content := strings.TrimSpace(a.Content)
	if content == "" {
		return NewValidationError("content", "", ErrMissingField)
	}
	if utf8.RuneCountInString(content) < MinContentLen {
		return NewValidationError("content", truncate(content, 40), ErrContentTooShort)
	}
	if a.Type == "" {
		return NewValidationError("type", "", ErrMissingField)
	}
	if a.Vendor == "" {
		return NewValidationError("vendor", "", ErrMissingField)
	}
	canonical := CanonicalURL(sourceURL)
	for _, c := range a.Citations {
		if CanonicalURL(c.URL) == canonical {
			return nil
		}
	}
	return NewValidationError("citations", sourceURL, ErrNoSourceCitation)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
