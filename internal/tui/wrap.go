package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// span is a run of prompt text rendered with one style.
type span struct {
	text  string
	style lipgloss.Style
}

// buildStyledRunes flattens spans into renderable cells. Whitespace runs of
// any kind render as single spaces so line breaks in the prompt do not leak
// into the layout.
func buildStyledRunes(spans []span) []styledRune {
	out := []styledRune{}
	prevSpace := true
	for _, sp := range spans {
		for _, r := range sp.text {
			if unicode.IsSpace(r) {
				if prevSpace {
					continue
				}
				prevSpace = true
				out = append(out, styledRune{s: sp.style.Render(" "), width: 1, isSpace: true})
				continue
			}
			prevSpace = false
			out = append(out, styledRune{
				s:     sp.style.Render(string(r)),
				width: runewidth.RuneWidth(r),
			})
		}
	}
	for len(out) > 0 && out[len(out)-1].isSpace {
		out = out[:len(out)-1]
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks lines at the last space that fits, or mid-word when
// a word is wider than the line.
func wrapStyledRunes(runes []styledRune, width int) []string {
	if width <= 0 {
		return []string{renderStyledRunes(runes)}
	}
	var lines []string
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpace := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if item.isSpace {
				lines = append(lines, renderStyledRunes(line))
				line = line[:0]
				lineWidth = 0
				lastSpace = -1
				i++
				continue
			}
			if lastSpace >= 0 {
				lines = append(lines, renderStyledRunes(line[:lastSpace]))
				line = append([]styledRune{}, line[lastSpace+1:]...)
			} else {
				lines = append(lines, renderStyledRunes(line))
				line = line[:0]
			}
			lineWidth = lineWidthOf(line)
			lastSpace = lastSpaceIndex(line)
			continue
		}
		if item.isSpace && len(line) == 0 {
			i++
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpace = len(line) - 1
		}
		i++
	}
	if len(line) > 0 {
		lines = append(lines, renderStyledRunes(line))
	}
	return lines
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
