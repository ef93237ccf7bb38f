package display

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	agentStyles = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#EC4899")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#14B8A6")),
	}

	agentTag = regexp.MustCompile(`^\[Agent (\d+)\]`)
)

// ResultsDisplay renders negotiation results and simulation state for a
// terminal.
type ResultsDisplay struct {
	out io.Writer
}

func NewResultsDisplay(out io.Writer) *ResultsDisplay {
	return &ResultsDisplay{out: out}
}

func (d *ResultsDisplay) println(s string) {
	fmt.Fprintln(d.out, s)
}

// ShowNegotiation prints the protocol result: summary panel, turns and
// transcript.
func (d *ResultsDisplay) ShowNegotiation(r *models.NegotiationResult) {
	d.println(titleStyle.Render(fmt.Sprintf("Negotiation %s at %s", short(r.ID), r.LocationID)))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Status:"), status(r.Success, r.Outcome))
	fmt.Fprintf(&b, "%s Agent %d (buyer) vs Agent %d (seller)\n", labelStyle.Render("Parties:"), r.Buyer, r.Seller)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Market:"), Money(&r.MarketPrice))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Final price:"), Money(r.FinalPrice))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Rounds:"), r.Rounds)
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("Network:"), r.Network.Config().DisplayName)
	d.println(panelStyle.Render(b.String()))

	if len(r.Conversation) > 0 {
		d.println(titleStyle.Render("Conversation"))
		for _, t := range r.Conversation {
			d.println(agentStyle(t.Speaker).Render(fmt.Sprintf("  Agent %d [%s] %s", t.Speaker, t.Action, t.Message)))
		}
	}
	d.ShowTranscript(r.Transcript)
}

// ShowDynamic prints the evaluate-then-match result.
func (d *ResultsDisplay) ShowDynamic(r *models.DynamicResult) {
	d.println(titleStyle.Render(fmt.Sprintf("Dynamic negotiation %s at %s", short(r.ID), r.LocationID)))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Status:"), status(r.Success, r.Outcome))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Method:"), r.Method)
	if r.Buyer != nil && r.Seller != nil {
		fmt.Fprintf(&b, "%s Agent %d pays Agent %d\n", labelStyle.Render("Roles:"), r.Buyer.AgentID, r.Seller.AgentID)
	}
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("Agreed price:"), Money(r.AgreedPrice))
	d.println(panelStyle.Render(b.String()))

	for _, ev := range r.Evaluations {
		amount := ev.WillingToPay
		if amount == nil {
			amount = ev.WillingToAccept
		}
		line := fmt.Sprintf("  Agent %d: %s, urgency %d, %s", ev.AgentID, ev.PreferredAction, ev.UrgencyScore, Money(amount))
		if ev.Fallback {
			line += " (fallback)"
		}
		d.println(agentStyle(ev.AgentID).Render(line))
	}
	d.ShowTranscript(r.Transcript)
}

func (d *ResultsDisplay) ShowTranscript(lines []string) {
	if len(lines) == 0 {
		return
	}
	d.println(titleStyle.Render("Transcript"))
	for _, line := range lines {
		d.println("  " + styleLine(line))
	}
}

// ShowSimulation prints one line per agent.
func (d *ResultsDisplay) ShowSimulation(s models.SimulationSnapshot) {
	var b strings.Builder
	state := "stopped"
	if s.IsRunning {
		state = "running"
	}
	fmt.Fprintf(&b, "%s %s (epoch %d)\n", labelStyle.Render("Simulation:"), state, s.Epoch)
	if s.CollisionDetected {
		fmt.Fprintf(&b, "%s %s\n", errorStyle.Render("Collision at"), s.CollisionLocation)
	}
	for _, a := range s.Agents {
		fmt.Fprintf(&b, "%-8s %-8s %-8s (%.4f, %.4f)\n", a.ID, a.Role, a.State, a.Position.Lat, a.Position.Lng)
	}
	d.println(panelStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// ShowHistory prints archived negotiations as a table.
func (d *ResultsDisplay) ShowHistory(records []models.NegotiationRecord) {
	if len(records) == 0 {
		d.println(systemStyle.Render("No negotiations recorded yet."))
		return
	}
	d.println(titleStyle.Render("Negotiation history"))
	d.println(labelStyle.Render(fmt.Sprintf("  %-8s %-16s %-8s %-8s %-18s %-12s %s", "ID", "When", "Kind", "Buyer", "Outcome", "Price", "Location")))
	for _, r := range records {
		buyer := "-"
		if r.BuyerID > 0 {
			buyer = fmt.Sprintf("%d", r.BuyerID)
		}
		line := fmt.Sprintf("  %-8s %-16s %-8s %-8s %-18s %-12s %s",
			short(r.ID), r.CreatedAt.Local().Format("2006-01-02 15:04"), kindLabel(r.Kind), buyer, r.Outcome, Money(r.Price), r.LocationID)
		if r.Success {
			d.println(okStyle.Render(line))
		} else {
			d.println(line)
		}
	}
}

// Money formats an optional amount in JPYC.
func Money(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2) + " JPYC"
}

func status(success bool, outcome models.Outcome) string {
	if success {
		return okStyle.Render("agreement (" + string(outcome) + ")")
	}
	return failStyle.Render("no agreement (" + string(outcome) + ")")
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[Error]"):
		return errorStyle.Render(line)
	case strings.HasPrefix(line, "[System]"):
		return systemStyle.Render(line)
	}
	if m := agentTag.FindStringSubmatch(line); m != nil {
		var id int
		fmt.Sscanf(m[1], "%d", &id)
		return agentStyle(id).Render(line)
	}
	return line
}

func agentStyle(id int) lipgloss.Style {
	if id <= 0 {
		return systemStyle
	}
	return agentStyles[(id-1)%len(agentStyles)]
}

func kindLabel(kind string) string {
	if kind == models.KindDynamic {
		return "dynamic"
	}
	return "ai"
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
