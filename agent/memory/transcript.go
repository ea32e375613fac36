package memory

import (
	"strings"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// FormatTranscript renders turns, oldest first, as "[Speaker] text" lines.
func FormatTranscript(turns []contractx.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "["+t.Speaker()+"] "+t.MessageText)
	}
	return strings.Join(lines, "\n")
}
