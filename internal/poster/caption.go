package poster

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxCaptionLength is the character limit for a media caption.
	MaxCaptionLength = 1024

	// MaxTextLength is the character limit for a text message.
	MaxTextLength = 4096
)

// FitCaption truncates caption to limit characters, preferring a word boundary.
func FitCaption(caption string, limit int) string {
	if utf8.RuneCountInString(caption) <= limit {
		return caption
	}

	runes := []rune(caption)
	available := limit - 3 // ellipsis
	if available <= 0 {
		return string(runes[:limit])
	}

	truncated := string(runes[:available])

	// Only use the word boundary if it is not too far back
	if !unicode.IsSpace(runes[available]) {
		if lastSpace := strings.LastIndexFunc(truncated, unicode.IsSpace); lastSpace > len(truncated)/2 {
			truncated = truncated[:lastSpace]
		}
	}

	return strings.TrimRightFunc(truncated, unicode.IsSpace) + "..."
}

// SplitText breaks text into parts of at most limit characters, cutting at
// line breaks or spaces when possible. Text that fits is returned as is.
func SplitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := cutPoint(runes[:limit])
		part := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}

	return parts
}

// cutPoint finds where to end a part: the last paragraph break, then the last
// line break, then the last space in the back half of window.
func cutPoint(window []rune) int {
	s := string(window)
	half := len(s) / 2

	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > half {
			return utf8.RuneCountInString(s[:i])
		}
	}
	return len(window)
}
