package audiobook

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonASCII    = regexp.MustCompile(`[^\x00-\x7F]+`)
	unspeakable = regexp.MustCompile(`[^A-Za-z0-9\s.,!?]`)
	whitespace  = regexp.MustCompile(`\s+`)
	camelCase   = regexp.MustCompile(`([a-z])([A-Z])`)
	capsRun     = regexp.MustCompile(`([A-Z]{2,})([a-z])`)
)

// Sanitize turns raw extracted page text into text a TTS model can read.
// It never fails; text with nothing left in it comes back as ".".
func Sanitize(raw string) string {
	s := nonASCII.ReplaceAllString(raw, " ")
	s = unspeakable.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = camelCase.ReplaceAllString(s, "$1 $2")
	s = capsRun.ReplaceAllString(s, "$1 $2")
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

// Speakable reports whether sanitized text has anything worth synthesizing.
func Speakable(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
