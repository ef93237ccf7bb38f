package display

import (
	"fmt"
	"strings"

	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/utils"
)

// Markdown renders an archived negotiation as a standalone report.
func Markdown(r models.NegotiationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Right-of-way negotiation %s\n\n", r.ID)
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Kind | %s |\n", r.Kind)
	fmt.Fprintf(&b, "| Location | %s |\n", r.LocationID)
	fmt.Fprintf(&b, "| Network | %s |\n", r.Network.Config().DisplayName)
	if r.BuyerID > 0 {
		fmt.Fprintf(&b, "| Buyer | Agent %d |\n", r.BuyerID)
	}
	if r.SellerID > 0 {
		fmt.Fprintf(&b, "| Seller | Agent %d |\n", r.SellerID)
	}
	fmt.Fprintf(&b, "| Outcome | %s |\n", r.Outcome)
	fmt.Fprintf(&b, "| Price | %s |\n", Money(r.Price))
	if r.MarketPrice != nil {
		fmt.Fprintf(&b, "| Market price | %s |\n", Money(r.MarketPrice))
	}
	if r.Rounds > 0 {
		fmt.Fprintf(&b, "| Rounds | %d |\n", r.Rounds)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "| Recorded | %s |\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if len(r.Turns) > 0 {
		b.WriteString("\n## Conversation\n\n")
		for i, t := range r.Turns {
			fmt.Fprintf(&b, "%d. **Agent %d** (%s): %s\n", i+1, t.Speaker, t.Action, t.Message)
		}
	}
	if len(r.Transcript) > 0 {
		b.WriteString("\n## Transcript\n\n```\n")
		for _, line := range r.Transcript {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("```\n")
	}
	return b.String()
}

// ExportMarkdown writes the report to dir and returns its path.
func ExportMarkdown(dir string, r models.NegotiationRecord) (string, error) {
	name := fmt.Sprintf("negotiation_%s.md", r.ID)
	return utils.WriteMarkdown(dir, name, Markdown(r))
}
