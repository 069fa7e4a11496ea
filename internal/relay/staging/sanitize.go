package staging

import (
	"path/filepath"
	"regexp"
	"strings"
)

const fallbackName = "upload"

var rxWhitespace = regexp.MustCompile(`\s+`)

// SanitizeFilename reduces a client-supplied filename to a safe base name.
// Whitespace runs become underscores, directory parts and leading dots are
// dropped, and an empty result falls back to "upload".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	name = rxWhitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Map(func(r rune) rune {
		if r == 0 || r == '/' || r == filepath.Separator {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return fallbackName
	}
	return name
}
