package utils

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed prompts
var promptFiles embed.FS

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(path string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", path))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", path, err)
	}
	return string(content), nil
}

// PromptNames lists every embedded prompt as it would be passed to LoadPrompt.
func PromptNames() []string {
	var names []string
	_ = fs.WalkDir(promptFiles, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		name := strings.TrimPrefix(path, "prompts/")
		names = append(names, strings.TrimSuffix(name, ".md"))
		return nil
	})
	sort.Strings(names)
	return names
}
