package relay

import (
	"math"
	"strings"
	"unicode/utf8"

	"relayd/pkg/types"
)

// EstimateTokens approximates a token count as max(chars/4, ceil(words*1.5)).
// Non-empty text is never zero tokens.
func EstimateTokens(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	byChars := utf8.RuneCountInString(s) / 4
	byWords := int(math.Ceil(float64(len(strings.Fields(s))) * 1.5))
	return max(1, byChars, byWords)
}

func estimateMessages(msgs []types.Message) int {
	n := 0
	for _, m := range msgs {
		n += EstimateTokens(m.Content)
	}
	return n
}
