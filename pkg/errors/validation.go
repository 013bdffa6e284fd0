package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePath validates a destination path taken from a build manifest.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative to the filesystem root)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// entryNameRegex matches entry names usable as URL segments and cache keys.
var entryNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._/\[\]-]*$`)

// ValidateEntryName validates the name of a render entry (e.g. "pages/about").
func ValidateEntryName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "entry name cannot be empty")
	}
	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "entry name too long (max 256 characters)")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return New(ErrCodeInvalidInput, "entry name contains invalid characters: %q", name)
	}
	if !entryNameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid entry name: %q", name)
	}
	return nil
}
