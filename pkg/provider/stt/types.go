package stt

import (
	"strings"
	"time"
)

// Segment is one recognised span of an utterance.
type Segment struct {
	// Text is the recognised speech. It may be empty or padded with
	// whitespace; use [JoinSegments] to build the utterance text.
	Text string

	// Start and End are offsets relative to the beginning of the utterance.
	// Zero when the engine does not report timing.
	Start time.Duration
	End   time.Duration
}

// JoinSegments trims every segment text, drops empty ones and joins the rest
// with single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
