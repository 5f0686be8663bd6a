package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"netrisk/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))

	riskStyles = map[models.Risk]lipgloss.Style{
		models.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F")),
		models.RiskMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		models.RiskLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787")),
	}
)

func (m DashboardModel) View() string {
	state := "idle"
	if m.status.Capturing {
		state = "capturing"
	}
	headerText := fmt.Sprintf("netrisk - %s", state)
	if m.status.Interface != "" {
		headerText += fmt.Sprintf(" on %s", m.status.Interface)
	}
	title := titleStyle.Render(headerText)

	// Session panel
	session := fmt.Sprintf("Packets: %d\nVolume: %s\nUnreadable: %d",
		m.status.TotalCaptured, formatBytes(m.summary.TotalBytes), m.summary.Degraded)
	sessionBox := infoStyle.Render(session)

	// Risk panel
	var riskStrs []string
	for _, r := range []models.Risk{models.RiskHigh, models.RiskMedium, models.RiskLow} {
		riskStrs = append(riskStrs, riskStyles[r].Render(fmt.Sprintf("%-6s %d", r, m.summary.Risk[r])))
	}
	riskBox := infoStyle.Render("Risk:\n" + strings.Join(riskStrs, "\n"))

	// Protocols
	var protoStrs []string
	limit := 5
	if len(m.summary.Protocols) < limit {
		limit = len(m.summary.Protocols)
	}
	for i := 0; i < limit; i++ {
		p := m.summary.Protocols[i]
		protoStrs = append(protoStrs, fmt.Sprintf("%s: %d", p.Protocol, p.Count))
	}
	if len(protoStrs) == 0 {
		protoStrs = append(protoStrs, "Waiting for data...")
	}
	protoBox := infoStyle.Render("Protocols:\n" + strings.Join(protoStrs, "\n"))

	// Top talkers
	var talkerStrs []string
	for _, t := range m.summary.TopTalkers {
		talkerStrs = append(talkerStrs, fmt.Sprintf("%s: %s", t.IP, formatBytes(int64(t.Bytes))))
	}
	if len(talkerStrs) == 0 {
		talkerStrs = append(talkerStrs, "Waiting for data...")
	}
	talkerBox := infoStyle.Render("Top Talkers:\n" + strings.Join(talkerStrs, "\n"))

	packetBox := infoStyle.Render("Latest Packets\n" + m.table.View())

	// Layout
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, sessionBox, riskBox, protoBox, talkerBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, packetBox)

	footer := "\n[s] start  [x] stop  [c] reset  [r] report  [q] quit"
	if m.err != nil {
		footer = "\n" + errStyle.Render("error: "+m.err.Error()) + footer
	} else if m.message != "" {
		footer = "\n" + m.message + footer
	}
	return body + footer
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
