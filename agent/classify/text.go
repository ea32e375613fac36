// Package classify holds the zero-cost intent gate that runs before any model call.
package classify

import (
	"strings"
)

type Reply string

const (
	ReplyDecline  Reply = "decline"
	ReplyInterest Reply = "interest"
	ReplyOther    Reply = "other"
)

var (
	declinePhrases = []string{
		"stop",
		"unsubscribe",
		"not interested",
		"no thanks",
		"leave me alone",
		"dont text",
		"don't text",
	}

	interestPhrases = []string{
		"yes",
		"yeah",
		"interested",
		"tell me more",
		"sounds good",
		"im in",
		"i'm in",
		"sure",
	}

	infoSeekingMarkers = []string{
		"what is this",
		"what's this",
		"who is this",
		"why are you texting",
		"why are you messaging",
		"how did you get my number",
		"more details",
		"?",
	}
)

// ClassifyReply checks decline phrases before interest phrases, so
// "no thanks, not interested" is a decline.
func ClassifyReply(text string) Reply {
	normalized := strings.ToLower(text)

	if containsAny(normalized, declinePhrases) {
		return ReplyDecline
	}
	if containsAny(normalized, interestPhrases) {
		return ReplyInterest
	}
	return ReplyOther
}

func IsInfoSeekingReply(text string) bool {
	return containsAny(strings.ToLower(text), infoSeekingMarkers)
}

// NormalizePhone renders input as E.164, assuming NANP for bare 10 digit numbers.
func NormalizePhone(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case strings.HasPrefix(input, "+"):
		return input
	default:
		return "+" + digits
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
