package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeIdentity produces the canonical form used for duplicate
// detection. Identities are stored and displayed verbatim; only collision
// checks are case- and diacritic-insensitive, so "Anna.jpg" and "anna.png"
// name the same person.
func NormalizeIdentity(identity string) string {
	identity = removeDiacritics(identity)
	identity = strings.ToLower(identity)
	return strings.TrimSpace(identity)
}

// IdentityFromFilename derives the identity key from a reference image
// filename: the text before the first dot.
func IdentityFromFilename(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}
