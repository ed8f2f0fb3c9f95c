package util

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for empty or traversal-shaped names.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName normalizes an uploaded file name into a safe storage key
// segment. Path separators become underscores, control characters are
// dropped, and traversal patterns are rejected outright.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	return s, nil
}
