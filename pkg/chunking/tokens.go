package chunking

import (
	"unicode"
	"unicode/utf8"
)

// CountTokens approximates tokens as whitespace-separated words, the same
// count strings.Fields would produce. The count is additive across any split
// made at a position preceded by whitespace, which is the only kind of split
// the chunker makes.
func CountTokens(s string) int {
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

// wordStarts returns the byte offsets at which words begin.
func wordStarts(s string) []int {
	var starts []int
	inWord := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			starts = append(starts, i)
		}
		i += size
	}
	return starts
}

// tail returns the suffix of s that starts at its k-th last word.
func tail(s string, k int) string {
	if k <= 0 {
		return ""
	}
	starts := wordStarts(s)
	if k > len(starts) {
		k = len(starts)
	}
	if k == 0 {
		return ""
	}
	return s[starts[len(starts)-k]:]
}
