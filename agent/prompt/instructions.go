package prompt

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadInstructionPack concatenates the global rules, the agent's rules and the
// agent's soul found under root. Missing or unreadable files are skipped.
//
// Layout:
//
//	<root>/AGENTS.md
//	<root>/agents/<agent>/AGENTS.md
//	<root>/agents/<agent>/SOUL.md
func LoadInstructionPack(root, agent string) string {
	agent = strings.ToLower(strings.TrimSpace(agent))

	sections := []struct {
		title string
		path  string
	}{
		{"# Global Rules", filepath.Join(root, "AGENTS.md")},
		{"# Agent Rules (" + agent + ")", filepath.Join(root, "agents", agent, "AGENTS.md")},
		{"# Agent Soul (" + agent + ")", filepath.Join(root, "agents", agent, "SOUL.md")},
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		body := readTrimmed(s.path)
		if body == "" {
			continue
		}
		parts = append(parts, s.title+"\n"+body)
	}
	return strings.Join(parts, "\n\n")
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
