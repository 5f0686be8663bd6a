package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"netrisk/internal/reporting"
)

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, m.action(func() (string, error) { return m.src.Start(m.iface) })
		case "x":
			return m, m.action(m.src.Stop)
		case "c":
			return m, m.action(func() (string, error) { return "reset", m.src.Reset() })
		case "r":
			return m, m.report()
		}

	case TickMsg:
		return m, pollCmd(m.src)

	case pollMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.packets = msg.packets
			m.summary = msg.summary
			m.table.SetRows(packetRows(m))
		}
		return m, tickCmd()

	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.message = msg.text
		}
		return m, pollCmd(m.src)
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m DashboardModel) action(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := fn()
		return actionMsg{text: text, err: err}
	}
}

// report writes what the dashboard currently shows.
func (m DashboardModel) report() tea.Cmd {
	rep := reporting.Report{Status: m.status, Summary: m.summary, Packets: m.packets}
	dir := m.reportDir
	return func() tea.Msg {
		path, err := reporting.GenerateSessionReport(dir, rep)
		return actionMsg{text: "report written to " + path, err: err}
	}
}

// packetRows lists the newest packet first.
func packetRows(m DashboardModel) []table.Row {
	rows := make([]table.Row, 0, len(m.packets))
	for i := len(m.packets) - 1; i >= 0; i-- {
		p := m.packets[i]
		rows = append(rows, table.Row{
			strconv.FormatUint(p.ID, 10),
			p.Timestamp.Format("15:04:05"),
			p.Source,
			p.Destination,
			p.Protocol,
			fmt.Sprintf("%d", p.Length),
			string(p.Risk),
		})
	}
	return rows
}
