package tui

import (
	"context"
	"fmt"
	"image/color"
	"maps"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/pipedesk/internal/domain"
)

// startTree opens the project hierarchy.
func (m Model) startTree() (tea.Model, tea.Cmd) {
	m.mode = modeTree
	m.treeIdx = 0
	m.status = "loading tree..."
	return m, m.loadTree(m.treeQuery)
}

// loadTree fetches the hierarchy filtered by query.
func (m Model) loadTree(query string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		view, err := api.SubprojectTree(context.Background(), query)
		return treeLoadedMsg{query: query, view: view, err: err}
	}
}

// applyTreeLoaded stores a loaded hierarchy. Filtered results open every matching branch.
func (m Model) applyTreeLoaded(msg treeLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = "tree failed: " + msg.err.Error()
		return m, nil
	}
	if msg.query != m.treeQuery {
		return m, nil
	}
	m.treeNodes = msg.view.Nodes
	m.treeTotal = msg.view.Total
	m.treeOpen = map[string]bool{}
	maps.Copy(m.treeOpen, msg.view.Open)
	m.treeIdx = clamp(m.treeIdx, 0, max(0, len(m.treeRows())-1))
	if m.treeQuery != "" {
		m.status = fmt.Sprintf("%d matches for %q", m.treeTotal, m.treeQuery)
	} else {
		m.status = fmt.Sprintf("%d nodes", m.treeTotal)
	}
	return m, nil
}

// treeRows returns the visible rows.
func (m Model) treeRows() []domain.TreeNode {
	return domain.Flatten(m.treeNodes, m.treeOpen)
}

// hasChildren reports whether the node keyed key has children in the loaded forest.
func (m Model) hasChildren(nodeKey string) bool {
	var walk func(nodes []domain.TreeNode) (bool, bool)
	walk = func(nodes []domain.TreeNode) (bool, bool) {
		for _, node := range nodes {
			if node.Key() == nodeKey {
				return len(node.Children) > 0, true
			}
			if has, found := walk(node.Children); found {
				return has, true
			}
		}
		return false, false
	}
	has, _ := walk(m.treeNodes)
	return has
}

// handleTreeKey handles keys in tree mode.
func (m Model) handleTreeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	rows := m.treeRows()
	if msg.String() == "esc" {
		if m.treeQuery != "" {
			m.treeQuery = ""
			m.treeIdx = 0
			return m, m.loadTree("")
		}
		m.mode = modeNone
		m.status = "ready"
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = true
		return m, nil
	case key.Matches(msg, m.keys.reload):
		return m, m.loadTree(m.treeQuery)
	case key.Matches(msg, m.keys.search):
		return m.startPrompt(promptTreeFilter, "", "Filter tree", "name contains", m.treeQuery)
	case key.Matches(msg, m.keys.moveUp):
		m.treeIdx = clamp(m.treeIdx-1, 0, max(0, len(rows)-1))
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.treeIdx = clamp(m.treeIdx+1, 0, max(0, len(rows)-1))
		return m, nil
	}
	if len(rows) == 0 {
		return m, nil
	}
	node := rows[clamp(m.treeIdx, 0, len(rows)-1)]
	switch {
	case msg.String() == "enter" || msg.String() == "space":
		m.treeOpen[node.Key()] = !m.treeOpen[node.Key()]
	case key.Matches(msg, m.keys.moveRight):
		m.treeOpen[node.Key()] = true
	case key.Matches(msg, m.keys.moveLeft):
		delete(m.treeOpen, node.Key())
	case key.Matches(msg, m.keys.copyID):
		return m, m.copyCmd(node.ID)
	case msg.String() == "c":
		targetType := domain.CommentTargetProject
		if node.Type == domain.NodeTypeSubProject {
			targetType = domain.CommentTargetSubProject
		}
		return m.startThread(modeTree, card{
			ID:     node.ID,
			Title:  node.Name,
			Target: domain.CommentTarget{TargetType: targetType, TargetID: node.ID},
		})
	}
	return m, nil
}

// renderTree renders the visible hierarchy rows around the cursor.
func (m Model) renderTree(accent, muted, _ color.Color) string {
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)

	title := "Projects and subprojects"
	if m.treeQuery != "" {
		title += " matching " + fmt.Sprintf("%q", m.treeQuery)
	}
	lines := []string{sectionStyle.Render(title)}
	rows := m.treeRows()
	if len(rows) == 0 {
		lines = append(lines, hintStyle.Render("(nothing to show)"))
	}

	height := max(6, m.height-10)
	cursor := clamp(m.treeIdx, 0, max(0, len(rows)-1))
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	for idx := start; idx < len(rows) && idx < start+height; idx++ {
		node := rows[idx]
		marker := "•"
		if m.hasChildren(node.Key()) {
			marker = "▸"
			if m.treeOpen[node.Key()] {
				marker = "▾"
			}
		}
		row := strings.Repeat("  ", node.Level) + marker + " " + node.Name
		if node.Type == domain.NodeTypeProject {
			row += hintStyle.Render("  project")
		}
		if idx == cursor {
			lines = append(lines, selectedStyle.Render(row))
			continue
		}
		lines = append(lines, row)
	}
	lines = append(lines, "", hintStyle.Render("enter expand • / filter • c comments • y copy id • esc back"))
	return strings.Join(lines, "\n")
}
