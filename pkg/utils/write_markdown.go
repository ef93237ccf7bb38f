package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// WriteMarkdown writes content to dir/fileName, creating dir as needed, and
// returns the written path.
func WriteMarkdown(dir, fileName, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	log.Printf("[Export] written to: %s", path)
	return path, nil
}
