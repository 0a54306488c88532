package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var commandPattern = regexp.MustCompile(`(?i)remind me in (\d+(?:\.\d+)?)(?:\s*(?:minutes?|mins?|m)\b)?(?:\s+about\s+(.+))?`)

// ParseCommand extracts a reminder from a transcribed phrase such as
// "remind me in 10 minutes about the oven". An empty text means the caller
// should use its default reminder text.
func ParseCommand(transcript string) (text string, delayMinutes float64, ok bool) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(transcript))
	if m == nil {
		return "", 0, false
	}
	delay, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", 0, false
	}
	text = strings.TrimRight(strings.TrimSpace(m[2]), ".!?")
	return text, delay, true
}

// Confirmation is the phrase spoken back after a reminder is set.
func Confirmation(delayMinutes float64) string {
	return fmt.Sprintf("Reminder set for %s minutes from now.", strconv.FormatFloat(delayMinutes, 'f', -1, 64))
}
