package chunk

import (
	"strings"
	"unicode"
)

// separators is the split ladder, most natural boundary first. Each
// separator stays attached to the fragment it ends, so concatenating
// fragments reproduces the input byte for byte.
var separators = []string{"\n\n", "\n", ". ", " "}

// maxFragmentRunes caps fragment length regardless of word count, so a
// single unbroken run (a base64 blob, a minified line) still descends
// the ladder and ultimately hard-splits instead of producing an
// oversized fragment.
const maxFragmentRunes = 4096

// fragment is an indivisible span handed to chunk assembly. Fragments
// are contiguous: each one starts where the previous one ended.
type fragment struct {
	text   string
	offset int
	words  int
}

// splitFragments breaks text into fragments that each fit the chunk
// word budget, descending the separator ladder only as far as needed.
func splitFragments(text string, budget int) []fragment {
	return descend(text, 0, 0, budget, nil)
}

func descend(text string, offset, level, budget int, out []fragment) []fragment {
	if fits(text, budget) {
		return append(out, fragment{text: text, offset: offset, words: countWords(text)})
	}
	if level >= len(separators) {
		return splitWords(text, offset, budget, out)
	}

	parts := strings.SplitAfter(text, separators[level])
	if len(parts) == 1 {
		// Separator absent at this level; try the next one down.
		return descend(text, offset, level+1, budget, out)
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if fits(part, budget) {
			out = append(out, fragment{text: part, offset: offset, words: countWords(part)})
		} else {
			out = descend(part, offset, level+1, budget, out)
		}
		offset += len(part)
	}
	return out
}

// fits reports whether a span may stand as a single fragment.
func fits(text string, budget int) bool {
	if len(text) > 4*maxFragmentRunes {
		// Cheap byte-length reject before counting runes.
		return false
	}
	words := 0
	runes := 0
	inWord := false
	for _, r := range text {
		runes++
		if runes > maxFragmentRunes {
			return false
		}
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			words++
			if words > budget {
				return false
			}
		}
	}
	return true
}

// splitWords is the rung below the string separators: cut before every
// word, so text whose words are divided by whitespace none of the
// string rungs match (tabs, non-breaking spaces) still honors the word
// budget. Whitespace stays attached to the fragment it follows, so
// concatenating fragments reproduces the input. A span with no word
// boundary at all falls through to the rune hard split.
func splitWords(text string, offset, budget int, out []fragment) []fragment {
	emit := func(span string, at int) {
		if fits(span, budget) {
			out = append(out, fragment{text: span, offset: at, words: countWords(span)})
		} else {
			out = hardSplit(span, at, out)
		}
	}

	start := 0
	prevSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if prevSpace && !space && i > start {
			emit(text[start:i], offset+start)
			start = i
		}
		prevSpace = space
	}
	if start == 0 {
		return hardSplit(text, offset, out)
	}
	emit(text[start:], offset+start)
	return out
}

// hardSplit is the ladder's last rung: fixed-size rune groups for text
// with no separator at all.
func hardSplit(text string, offset int, out []fragment) []fragment {
	runes := []rune(text)
	for start := 0; start < len(runes); start += maxFragmentRunes {
		end := start + maxFragmentRunes
		if end > len(runes) {
			end = len(runes)
		}
		span := string(runes[start:end])
		out = append(out, fragment{text: span, offset: offset, words: countWords(span)})
		offset += len(span)
	}
	return out
}

// countWords counts whitespace-delimited words without allocating.
func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}
