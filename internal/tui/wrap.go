package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapWords breaks text into lines no wider than width, splitting at the
// last space that fits. Words longer than width are broken mid-word.
// Existing newlines are kept.
func wrapWords(text string, width int) string {
	if width <= 0 {
		return text
	}
	paragraphs := strings.Split(text, "\n")
	for i, p := range paragraphs {
		paragraphs[i] = wrapParagraph(p, width)
	}
	return strings.Join(paragraphs, "\n")
}

func wrapParagraph(text string, width int) string {
	var out strings.Builder
	line := make([]rune, 0, width)
	lineWidth := 0
	lastSpace := -1

	runes := []rune(text)
	for i := 0; i < len(runes); {
		r := runes[i]
		w := runewidth.RuneWidth(r)
		if lineWidth+w > width && len(line) > 0 {
			if lastSpace >= 0 {
				out.WriteString(string(line[:lastSpace]))
				line = append([]rune{}, line[lastSpace+1:]...)
			} else {
				out.WriteString(string(line))
				line = line[:0]
			}
			out.WriteByte('\n')
			lineWidth = runewidth.StringWidth(string(line))
			lastSpace = lastSpaceIndex(line)
			continue
		}
		line = append(line, r)
		lineWidth += w
		if r == ' ' {
			lastSpace = len(line) - 1
		}
		i++
	}
	out.WriteString(string(line))
	return out.String()
}

func lastSpaceIndex(line []rune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == ' ' {
			return i
		}
	}
	return -1
}
