// Package readtime estimates how long captured text takes to read.
package readtime

import (
	"strings"
	"time"
)

const (
	// WordsPerMinute is the assumed reading speed.
	WordsPerMinute = 250
	// Minimum is the shortest estimate returned.
	Minimum = 10 * time.Second
)

// Words counts whitespace-separated words in text.
func Words(text string) int {
	return len(strings.Fields(text))
}

// Estimate returns the reading time for words, rounded up to whole seconds
// and never below Minimum.
func Estimate(words int) time.Duration {
	secs := (words*60 + WordsPerMinute - 1) / WordsPerMinute
	d := time.Duration(secs) * time.Second
	if d < Minimum {
		return Minimum
	}
	return d
}
