package poster

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFitCaption(t *testing.T) {
	t.Run("short caption unchanged", func(t *testing.T) {
		assert.Equal(t, "Short caption.", FitCaption("Short caption.", 100))
	})

	t.Run("long caption truncated at a word", func(t *testing.T) {
		caption := "This caption is a good deal longer than the limit allows for this message."
		result := FitCaption(caption, 30)

		assert.LessOrEqual(t, utf8.RuneCountInString(result), 30)
		assert.True(t, strings.HasSuffix(result, "..."))
		assert.Equal(t, "This caption is a good deal...", result)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		caption := strings.Repeat("ж", 20)
		assert.Equal(t, caption, FitCaption(caption, 20))

		result := FitCaption(caption, 10)
		assert.Equal(t, 10, utf8.RuneCountInString(result))
	})

	t.Run("tiny limit", func(t *testing.T) {
		assert.Equal(t, "ab", FitCaption("abcdef", 2))
	})
}

func TestSplitText(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitText("hello", 10))
	})

	t.Run("prefers paragraph breaks", func(t *testing.T) {
		text := "first paragraph here\n\nsecond one"
		assert.Equal(t, []string{"first paragraph here", "second one"}, SplitText(text, 25))
	})

	t.Run("falls back to spaces", func(t *testing.T) {
		parts := SplitText("one two three four five six", 10)
		for _, p := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(p), 10)
		}
		assert.Equal(t, "one two three four five six", strings.Join(parts, " "))
	})

	t.Run("hard cut without spaces", func(t *testing.T) {
		parts := SplitText(strings.Repeat("x", 25), 10)
		assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
	})
}
