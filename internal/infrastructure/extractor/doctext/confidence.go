package doctext

import (
	"math"
	"strings"
	"unicode"
)

// estimateConfidence scores extracted page text on a 0-100 scale from two
// signals: how much of it is printable and how much of it tokenizes into
// word-like runs. Empty text scores zero.
func estimateConfidence(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	score := printableRatio(text)*70 + wordlikeRatio(text)*30
	return int(math.Round(score))
}

// printableRatio excludes Private Use Area glyphs, the replacement character
// and control characters other than whitespace.
func printableRatio(text string) float64 {
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	if r == 0xFFFD {
		return true
	}
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// wordlikeRatio counts tokens between 2 and 15 runes; shorter or longer runs
// usually mean broken font decoding.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
