package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/pipedesk/internal/client"
	"github.com/hylla/pipedesk/internal/domain"
)

// handleSettingsKey handles keys in the funnel settings editor.
func (m Model) handleSettingsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.mode = modeNone
		m.status = "ready"
		return m, m.loadData
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = true
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleScope):
		next, cmd := m.switchScope()
		model := next.(Model)
		model.mode = modeSettings
		return model, cmd
	case key.Matches(msg, m.keys.nextFunnel):
		next, cmd := m.cycleFunnel(1)
		model := next.(Model)
		model.mode = modeSettings
		return model, cmd
	case key.Matches(msg, m.keys.newFunnel):
		return m.startPrompt(promptNewFunnel, "", "New "+scopeLabel(m.scope)+" funnel", "funnel name", "")
	}

	funnel, ok := m.currentFunnel()
	if !ok {
		m.status = "no funnel selected, press N to create one"
		return m, nil
	}
	stage, hasStage := m.selectedStage(funnel)

	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.stageIdx = clamp(m.stageIdx-1, 0, max(0, len(funnel.Stages)-1))
	case key.Matches(msg, m.keys.moveDown):
		m.stageIdx = clamp(m.stageIdx+1, 0, max(0, len(funnel.Stages)-1))
	case key.Matches(msg, m.keys.renameFunnel):
		return m.startPrompt(promptRenameFunnel, funnel.ID, "Rename funnel", "funnel name", funnel.Name)
	case key.Matches(msg, m.keys.deleteFunnel):
		return m.startConfirm(confirmDeleteFunnel, funnel.ID, funnel.Name)
	case key.Matches(msg, m.keys.newStage):
		return m.startPrompt(promptNewStage, funnel.ID, "New stage in "+funnel.Name, "stage name", "")
	case key.Matches(msg, m.keys.renameStage):
		if !hasStage {
			m.status = "no stage selected"
			return m, nil
		}
		return m.startPrompt(promptRenameStage, stage.ID, "Rename stage", "stage name", stage.Name)
	case key.Matches(msg, m.keys.deleteStage):
		if !hasStage {
			m.status = "no stage selected"
			return m, nil
		}
		return m.startConfirm(confirmDeleteStage, stage.ID, stage.Name)
	case key.Matches(msg, m.keys.stageUp):
		return m.reorderSelectedStage(funnel, stage, hasStage, domain.DirectionUp)
	case key.Matches(msg, m.keys.stageDown):
		return m.reorderSelectedStage(funnel, stage, hasStage, domain.DirectionDown)
	}
	return m, nil
}

// reorderSelectedStage swaps the selected stage with its neighbor and keeps it selected.
func (m Model) reorderSelectedStage(funnel domain.Funnel, stage domain.Stage, ok bool, direction domain.Direction) (tea.Model, tea.Cmd) {
	if !ok {
		m.status = "no stage selected"
		return m, nil
	}
	if m.editor.InFlight(funnel.ID) {
		m.status = "still saving, try again"
		return m, nil
	}
	if direction == domain.DirectionUp {
		m.stageIdx = clamp(m.stageIdx-1, 0, max(0, len(funnel.Stages)-1))
	} else {
		m.stageIdx = clamp(m.stageIdx+1, 0, max(0, len(funnel.Stages)-1))
	}
	funnelID := funnel.ID
	return m.runEditorAction("moved stage "+stage.Name+" "+string(direction), false, func(ctx context.Context, e *client.Editor) client.Result {
		return e.ReorderStage(ctx, funnelID, stage.ID, direction)
	})
}

// selectedStage returns the stage under the settings cursor.
func (m Model) selectedStage(funnel domain.Funnel) (domain.Stage, bool) {
	if len(funnel.Stages) == 0 {
		return domain.Stage{}, false
	}
	return funnel.Stages[clamp(m.stageIdx, 0, len(funnel.Stages)-1)], true
}

func (m *Model) clampStageSelection() {
	funnel, ok := m.currentFunnel()
	if !ok {
		m.stageIdx = 0
		return
	}
	m.stageIdx = clamp(m.stageIdx, 0, max(0, len(funnel.Stages)-1))
}

// renderSettings renders the funnel list beside the selected funnel's stages.
func (m Model) renderSettings(accent, muted, dim color.Color) string {
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1).
		MarginRight(1)

	funnels := m.editor.Funnels()
	left := []string{sectionStyle.Render(fmt.Sprintf("Funnels for %s (%d)", scopeLabel(m.scope), len(funnels)))}
	if len(funnels) == 0 {
		left = append(left, hintStyle.Render("(none, N to create)"))
	}
	for _, funnel := range funnels {
		name := truncate(funnel.Name, 28)
		if m.editor.InFlight(funnel.ID) {
			name += " …"
		}
		if funnel.ID == m.funnelID {
			left = append(left, selectedStyle.Render("› "+name))
			continue
		}
		left = append(left, "  "+name)
	}

	right := []string{sectionStyle.Render("Stages")}
	if funnel, ok := m.currentFunnel(); ok {
		if len(funnel.Stages) == 0 {
			right = append(right, hintStyle.Render("(no stages, n to add)"))
		}
		cursor := clamp(m.stageIdx, 0, max(0, len(funnel.Stages)-1))
		for idx, stage := range funnel.Stages {
			row := fmt.Sprintf("%2d. %s", stage.Order, truncate(stage.Name, 32))
			if m.editor.InFlight(stage.ID) {
				row += " …"
			}
			if idx == cursor {
				right = append(right, selectedStyle.Render("› "+row))
				continue
			}
			right = append(right, "  "+row)
		}
	}
	right = append(right, "", hintStyle.Render("n new • e rename • d delete • K/J reorder • esc board"))

	return lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Width(36).Render(strings.Join(left, "\n")),
		boxStyle.Width(max(40, m.width-40)).Render(strings.Join(right, "\n")),
	)
}
