package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/server"
	"github.com/dd0wney/cluso-apx/pkg/tap"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	nodesView
	portsView
	tapView
	numViews
)

var viewNames = [numViews]string{"Dashboard", "Nodes", "Ports", "Tap"}

// maxTapLines bounds the tap history
const maxTapLines = 200

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Refresh  key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Refresh},
		{k.Up, k.Down, k.Quit},
	}
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

type tickMsg time.Time

type model struct {
	api      *statusAPI
	interval time.Duration
	tapURL   string

	currentView view
	nodeTable   table.Model
	portTable   table.Model
	help        help.Model
	keys        keyMap

	status   *server.Status
	nodes    []server.NodeStatus
	lastErr  error
	lastPoll time.Time
	tapLines []string
	tapCount int

	width  int
	height int
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func initialModel(api *statusAPI, interval time.Duration, tapURL string) model {
	return model{
		api:      api,
		interval: interval,
		tapURL:   tapURL,
		nodeTable: newTable([]table.Column{
			{Title: "Node", Width: 20},
			{Title: "Conn", Width: 6},
			{Title: "Provide", Width: 8},
			{Title: "Require", Width: 8},
			{Title: "Connected", Width: 10},
		}),
		portTable: newTable([]table.Column{
			{Title: "Node", Width: 16},
			{Title: "Port", Width: 20},
			{Title: "Dir", Width: 4},
			{Title: "Signature", Width: 14},
			{Title: "Value", Width: 20},
			{Title: "Links", Width: 6},
		}),
		help: help.New(),
		keys: keys,
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.api.pollCmd(),
		tickCmd(m.interval),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.api.pollCmd(), tickCmd(m.interval))

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case tapMsg:
		m.addTapMessage(msg.msg)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % numViews

		case key.Matches(msg, m.keys.ShiftTab):
			m.currentView = (m.currentView + numViews - 1) % numViews

		case key.Matches(msg, m.keys.Refresh):
			return m, m.api.pollCmd()
		}
	}

	switch m.currentView {
	case nodesView:
		m.nodeTable, cmd = m.nodeTable.Update(msg)
		cmds = append(cmds, cmd)
	case portsView:
		m.portTable, cmd = m.portTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applySnapshot(msg snapshotMsg) {
	m.lastPoll = msg.at
	m.lastErr = msg.err
	if msg.status != nil {
		m.status = msg.status
	}
	if msg.err != nil {
		return
	}
	m.nodes = msg.nodes
	sort.Slice(m.nodes, func(i, j int) bool { return m.nodes[i].Name < m.nodes[j].Name })
	m.nodeTable.SetRows(nodeRows(m.nodes))
	m.portTable.SetRows(portRows(m.nodes))
}

func (m *model) addTapMessage(msg *tap.Message) {
	m.tapCount++
	line := fmt.Sprintf("%s  %-32s %s  (%d)",
		msg.Time.Local().Format("15:04:05.000"),
		tap.Topic(msg.Node, msg.Port),
		formatValue(msg.Value),
		msg.Receivers)
	m.tapLines = append(m.tapLines, line)
	if len(m.tapLines) > maxTapLines {
		m.tapLines = m.tapLines[len(m.tapLines)-maxTapLines:]
	}
}

func nodeRows(nodes []server.NodeStatus) []table.Row {
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		connected := 0
		for _, p := range n.Require {
			if p.Connectors > 0 {
				connected++
			}
		}
		rows = append(rows, table.Row{
			n.Name,
			fmt.Sprintf("%d", n.ConnectionID),
			fmt.Sprintf("%d", len(n.Provide)),
			fmt.Sprintf("%d", len(n.Require)),
			fmt.Sprintf("%d/%d", connected, len(n.Require)),
		})
	}
	return rows
}

func portRows(nodes []server.NodeStatus) []table.Row {
	var rows []table.Row
	for _, n := range nodes {
		for _, p := range n.Provide {
			rows = append(rows, portRow(n.Name, "P", p))
		}
		for _, p := range n.Require {
			rows = append(rows, portRow(n.Name, "R", p))
		}
	}
	return rows
}

func portRow(node, dir string, p server.PortStatus) table.Row {
	return table.Row{
		node,
		p.Name,
		dir,
		p.Signature,
		formatValue(p.Value),
		fmt.Sprintf("%d", p.Connectors),
	}
}

// formatValue renders a JSON decoded port value in APX literal syntax
func formatValue(v any) string {
	if v == nil {
		return "-"
	}
	return apx.FormatValue(fromJSON(v))
}

// fromJSON turns JSON numbers back into the integers ports carry
func fromJSON(v any) any {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = fromJSON(item)
		}
		return items
	}
	return v
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("APX Monitor"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n")

	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case nodesView:
		s.WriteString(m.renderTable("Attached Nodes", m.nodeTable))
	case portsView:
		s.WriteString(m.renderTable("Ports", m.portTable))
	case tapView:
		s.WriteString(m.renderTap())
	}

	s.WriteString("\n")
	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return s.String()
}

func (m model) renderTabs() string {
	tabs := make([]string, 0, numViews)
	for i, name := range viewNames {
		style := inactiveTabStyle
		if view(i) == m.currentView {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(name))
	}
	return lipgloss.NewStyle().MarginLeft(2).Render(
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
	)
}

func (m model) renderDashboard() string {
	if m.status == nil {
		return contentStyle.Render(helpStyle.Render("Waiting for server status..."))
	}
	st := m.status
	uptime := time.Duration(st.Uptime * float64(time.Second)).Round(time.Second)
	serverBox := fmt.Sprintf(`Server
━━━━━━━━━━━━━━━
Instance:    %s
Listen:      %s
Uptime:      %s`,
		shortID(st.Instance), st.ListenAddr, uptime)

	routing := fmt.Sprintf(`Routing
━━━━━━━━━━━━━━━
Connections: %d
Nodes:       %d
Connectors:  %d
Tap updates: %d`,
		st.Connections, st.Nodes, st.Connectors, m.tapCount)

	return contentStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		statsBoxStyle.Render(serverBox),
		statsBoxStyle.Render(routing),
	))
}

func (m model) renderTable(title string, t table.Model) string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(title))
	s.WriteString("\n\n")
	s.WriteString(t.View())
	return contentStyle.Render(s.String())
}

func (m model) renderTap() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Port Updates"))
	s.WriteString("\n\n")
	if m.tapURL == "" {
		s.WriteString(helpStyle.Render("Start with -tap <url> to follow port updates"))
		return contentStyle.Render(s.String())
	}
	lines := m.tapLines
	if limit := m.height - 12; limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	if len(lines) == 0 {
		s.WriteString(helpStyle.Render("No updates from " + m.tapURL + " yet"))
	}
	s.WriteString(strings.Join(lines, "\n"))
	return contentStyle.Render(s.String())
}

func (m model) renderStatusLine() string {
	if m.lastErr != nil {
		return contentStyle.Render(errorStyle.Render("✗ " + m.lastErr.Error()))
	}
	if m.lastPoll.IsZero() {
		return ""
	}
	return contentStyle.Render(successStyle.Render("✓ " + m.api.base + " at " + m.lastPoll.Format("15:04:05")))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
