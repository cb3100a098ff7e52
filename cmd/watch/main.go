package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(1)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#888888")).
			MarginLeft(1)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			MarginLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true).
			MarginLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginLeft(1).
			MarginTop(1)
)

const refreshInterval = 2 * time.Second

type nodeRow struct {
	NodeID            int64  `json:"node_id"`
	GroupID           int    `json:"group_id"`
	Name              string `json:"name"`
	Port              int    `json:"port"`
	GoalState         string `json:"goal_state"`
	ReportedState     string `json:"reported_state"`
	Health            string `json:"health"`
	ReportedLSN       uint64 `json:"reported_lsn"`
	CandidatePriority int    `json:"candidate_priority"`
}

type eventRow struct {
	EventID     int64  `json:"event_id"`
	Description string `json:"description"`
}

type refreshMsg struct {
	nodes  []nodeRow
	events []eventRow
	err    error
}

type model struct {
	monitorURL string
	formation  string
	table      table.Model
	events     []eventRow
	err        error
}

func newModel(monitorURL, formation string) model {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Group", Width: 5},
		{Title: "Node", Width: 24},
		{Title: "Reported", Width: 18},
		{Title: "Goal", Width: 18},
		{Title: "Health", Width: 8},
		{Title: "LSN", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return model{
		monitorURL: monitorURL,
		formation:  formation,
		table:      t,
	}
}

func (m model) Init() tea.Cmd {
	return m.refresh()
}

func (m model) refresh() tea.Cmd {
	return func() tea.Msg {
		msg := refreshMsg{}

		msg.err = getJSON(fmt.Sprintf("%s/v1/formations/%s/nodes",
			m.monitorURL, m.formation), &msg.nodes)
		if msg.err != nil {
			return msg
		}

		msg.err = getJSON(fmt.Sprintf("%s/v1/formations/%s/events?limit=8",
			m.monitorURL, m.formation), &msg.events)
		return msg
	}
}

func getJSON(url string, out any) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			rows := make([]table.Row, 0, len(msg.nodes))
			for _, node := range msg.nodes {
				rows = append(rows, table.Row{
					fmt.Sprintf("%d", node.NodeID),
					fmt.Sprintf("%d", node.GroupID),
					fmt.Sprintf("%s:%d", node.Name, node.Port),
					node.ReportedState,
					node.GoalState,
					node.Health,
					fmt.Sprintf("%d", node.ReportedLSN),
				})
			}
			m.table.SetRows(rows)
			m.events = msg.events
		}
		return m, tea.Tick(refreshInterval, func(time.Time) tea.Msg {
			return m.refresh()()
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) View() string {
	view := titleStyle.Render(fmt.Sprintf("Formation %q", m.formation)) + "\n"

	if m.err != nil {
		view += errorStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n"
	}

	view += tableStyle.Render(m.table.View()) + "\n"

	for _, event := range m.events {
		view += eventStyle.Render(fmt.Sprintf("%6d  %s", event.EventID, event.Description)) + "\n"
	}

	view += helpStyle.Render("q to quit")
	return view
}

func main() {
	monitorURL := flag.String("monitor", "http://localhost:8080", "Monitor API base URL")
	formation := flag.String("formation", "default", "Formation to watch")
	flag.Parse()

	program := tea.NewProgram(newModel(*monitorURL, *formation))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}
}
