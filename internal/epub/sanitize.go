// Package epub implements the EPUB Builder: turning a fetched book's
// metadata, chapter HTML, stylesheets and images into a packaged
// .epub file in the Legacy (EPUB2), Enhanced (EPUB3) or Kindle
// variant shape described in spec.md §4.7.
//
// Grounded on the teacher's internal/oreilly/client.go (chapter/CSS/
// image download, content.opf/toc.ncx generation, ZIP packaging) and
// on oreilly_books/epub_legacy.py + epub_enhanced.py for the two
// variant shapes, cross-checked against simp-lee-epub's container/
// zip path-safety helpers.
package epub

import (
	"regexp"
	"runtime"
	"strings"
)

// forbiddenFilenameChars mirrors escape_dirname's character set in
// safaribooks_refactored.py.
var forbiddenFilenameChars = []string{"~", "#", "%", "&", "*", "{", "}", "\\", "<", ">", "?", "/", "`", "'", "\"", "|", "+", ":"}

// maxTitleLength caps a sanitized filename component, matching the
// teacher's cleanFilename 100-char cap.
const maxTitleLength = 100

var nonWordOrSpace = regexp.MustCompile(`[^\w\s\-]`)

// SanitizeFilename is the single shared filename-sanitization routine
// used everywhere a book or chapter title becomes part of a path,
// replacing the two diverging implementations the teacher and the
// original source each carried (cleanFilename's blanket non-word
// strip vs escape_dirname's colon-aware subtitle drop). Behavior:
// a colon past column 15 is treated as a subtitle separator and
// everything from it onward is dropped (so "Designing Data-Intensive
// Applications: The Big Ideas..." loses its subtitle but "Go: The
// Basics" keeps it); on Windows a colon at or before column 15 becomes
// a comma instead of being cut; any remaining character from the
// forbidden set, including such an early colon elsewhere, becomes an
// underscore; the result is capped at maxTitleLength runes.
func SanitizeFilename(name string) string {
	out := name

	if idx := strings.Index(out, ":"); idx >= 0 {
		switch {
		case idx > 15:
			out = out[:idx]
		case runtime.GOOS == "windows":
			out = strings.ReplaceAll(out, ":", ",")
		}
	}

	for _, ch := range forbiddenFilenameChars {
		out = strings.ReplaceAll(out, ch, "_")
	}

	out = strings.TrimSpace(out)
	if len([]rune(out)) > maxTitleLength {
		runes := []rune(out)
		out = string(runes[:maxTitleLength])
	}
	return strings.TrimSpace(out)
}

// SanitizeTitleForArchive applies the looser, whitespace-preserving
// rule the teacher used when naming the on-disk book working
// directory (alphanumeric/whitespace/hyphen only, no colon handling),
// kept separate from SanitizeFilename because the two call sites have
// different tolerance for subtitle loss: a working directory name is
// disposable scratch space, the final .epub name is user-facing.
func SanitizeTitleForArchive(name string) string {
	clean := nonWordOrSpace.ReplaceAllString(name, "")
	if len(clean) > maxTitleLength {
		clean = clean[:maxTitleLength]
	}
	return strings.TrimSpace(clean)
}
