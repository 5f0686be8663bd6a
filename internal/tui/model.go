// Package tui renders a terminal dashboard polling a capture session.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netrisk/internal/analysis"
	"netrisk/internal/models"
)

const (
	pollInterval = 500 * time.Millisecond
	tableRows    = 15
	topTalkers   = 5
)

// Source is what the dashboard polls and controls.
type Source interface {
	Status() (models.Status, error)
	Latest(limit int) ([]models.PacketRecord, error)
	Summary(top int) (analysis.Summary, error)
	Start(iface string) (string, error)
	Stop() (string, error)
	Reset() error
}

type TickMsg time.Time

type pollMsg struct {
	status  models.Status
	packets []models.PacketRecord
	summary analysis.Summary
	err     error
}

type actionMsg struct {
	text string
	err  error
}

// DashboardModel is the bubbletea model of the dashboard.
type DashboardModel struct {
	src       Source
	iface     string
	reportDir string

	status  models.Status
	packets []models.PacketRecord
	summary analysis.Summary
	table   table.Model

	message string
	err     error
}

// NewDashboardModel polls src. iface is passed to Start; reportDir receives reports.
func NewDashboardModel(src Source, iface, reportDir string) DashboardModel {
	columns := []table.Column{
		{Title: "ID", Width: 7},
		{Title: "Time", Width: 9},
		{Title: "Source", Width: 24},
		{Title: "Destination", Width: 24},
		{Title: "Proto", Width: 8},
		{Title: "Length", Width: 7},
		{Title: "Risk", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(tableRows),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DashboardModel{
		src:       src,
		iface:     iface,
		reportDir: reportDir,
		table:     t,
	}
}

func (m DashboardModel) Init() tea.Cmd {
	return pollCmd(m.src)
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func pollCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		var msg pollMsg
		if msg.status, msg.err = src.Status(); msg.err != nil {
			return msg
		}
		if msg.packets, msg.err = src.Latest(tableRows); msg.err != nil {
			return msg
		}
		msg.summary, msg.err = src.Summary(topTalkers)
		return msg
	}
}
