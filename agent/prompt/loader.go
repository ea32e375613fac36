package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/classify.txt
	classifyRaw string

	//go:embed template/extract.txt
	extractRaw string

	//go:embed template/ellis_reply.txt
	ellisReplyRaw string
)

// PromptSet holds the system prompts for each model capability.
type PromptSet struct {
	Classify   string
	Extract    string
	EllisReply string
}

// LoadPromptSet returns the embedded prompts, each folded onto a single line.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classify:   oneLine(classifyRaw),
		Extract:    oneLine(extractRaw),
		EllisReply: oneLine(ellisReplyRaw),
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
