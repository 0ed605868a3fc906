package tts

import "strings"

// sentence terminators recognized by the splitter. The ellipsis and the
// CJK/full-width stops matter for mixed-language answers.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true, '…': true,
	'。': true, '！': true, '？': true, '\n': true,
}

// SplitText splits text into parts of at most maxRunes runes, preferring
// sentence boundaries. A single sentence longer than the limit is hard-split
// at the limit. The concatenation of the returned parts, ignoring boundary
// whitespace, reproduces the input.
func SplitText(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxPartRunes
	}

	var parts []string
	var current []rune

	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			parts = append(parts, s)
		}
		current = current[:0]
	}

	for _, sentence := range sentences(text) {
		runes := []rune(sentence)

		// Oversized sentence: flush what we have, then hard-split.
		if len(runes) > maxRunes {
			flush()
			for len(runes) > maxRunes {
				parts = append(parts, strings.TrimSpace(string(runes[:maxRunes])))
				runes = runes[maxRunes:]
			}
			current = append(current, runes...)
			continue
		}

		if len(current)+len(runes) > maxRunes {
			flush()
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}

// sentences cuts text after each sentence terminator, keeping the
// terminator (and any run of terminators, e.g. "?!") with its sentence.
func sentences(text string) []string {
	var out []string
	var current []rune
	inEnder := false
	for _, r := range text {
		if sentenceEnders[r] {
			inEnder = true
			current = append(current, r)
			continue
		}
		if inEnder {
			out = append(out, string(current))
			current = current[:0]
			inEnder = false
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		out = append(out, string(current))
	}
	return out
}
