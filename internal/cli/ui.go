package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/RightOfWay/pkg/app"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			Width(72).
			Align(lipgloss.Center)

	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(72)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))
)

// DisplayWelcomeBanner shows the welcome banner
func DisplayWelcomeBanner(w io.Writer) {
	banner := fmt.Sprintf("RightOfWay %s\nAgents negotiate who passes first, then settle the price", app.Version)
	fmt.Fprintln(w, bannerStyle.Render(banner))
	fmt.Fprintln(w)
}

// DisplayError shows an error message
func DisplayError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
}

// DisplayInfo shows an info message
func DisplayInfo(w io.Writer, message string) {
	fmt.Fprintln(w, infoStyle.Render(message))
}

// DisplaySuccess shows a success message
func DisplaySuccess(w io.Writer, message string) {
	fmt.Fprintln(w, successStyle.Render(message))
}

// DisplayRequestSummary echoes the negotiation about to run.
func DisplayRequestSummary(w io.Writer, sel NegotiationSelections) {
	mode := "offer/counter bargaining"
	if sel.Options.dynamic {
		mode = "evaluate and match roles"
	}
	network := sel.Options.network
	if network == "" {
		network = "(config default)"
	}
	body := fmt.Sprintf("Agents:   %d vs %d\nLocation: %s\nMode:     %s\nNetwork:  %s",
		sel.Options.agent1, sel.Options.agent2, sel.Options.location, mode, network)
	fmt.Fprintln(w, summaryStyle.Render(body))
}
