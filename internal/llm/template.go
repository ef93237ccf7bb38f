package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/RightOfWay/internal/utils"
)

// Render loads an embedded prompt and fills it through an eino chat template.
func Render(ctx context.Context, name string, vars map[string]any) (string, error) {
	raw, err := utils.LoadPrompt(name)
	if err != nil {
		return "", err
	}
	tpl := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(raw))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
