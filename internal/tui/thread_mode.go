package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// threadLoadedMsg carries the comments of one thread.
type threadLoadedMsg struct {
	target   domain.CommentTarget
	comments []domain.Comment
	err      error
}

// commentCreatedMsg reports a posted comment.
type commentCreatedMsg struct {
	target  domain.CommentTarget
	comment domain.Comment
	err     error
}

// startThread opens the description and comments of c, returning to back on esc.
func (m Model) startThread(back inputMode, c card) (tea.Model, tea.Cmd) {
	m.mode = modeThread
	m.threadBackMode = back
	m.threadCard = c
	m.threadComments = nil
	m.threadScroll = 0
	m.threadInput.SetValue("")
	m.threadInput.CursorEnd()
	m.threadInput.Focus()
	m.status = "loading thread..."
	return m, m.loadThreadComments(c.Target)
}

// loadThreadComments lists the comments of target.
func (m Model) loadThreadComments(target domain.CommentTarget) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		comments, err := api.ListComments(context.Background(), target)
		return threadLoadedMsg{target: target, comments: comments, err: err}
	}
}

// createThreadComment posts body to the open thread.
func (m Model) createThreadComment(body string) tea.Cmd {
	api := m.api
	target := m.threadCard.Target
	return func() tea.Msg {
		comment, err := api.CreateComment(context.Background(), target, body)
		return commentCreatedMsg{target: target, comment: comment, err: err}
	}
}

func (m Model) applyThreadLoaded(msg threadLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.target != m.threadCard.Target {
		return m, nil
	}
	if msg.err != nil {
		m.status = "thread failed: " + msg.err.Error()
		return m, nil
	}
	m.threadComments = msg.comments
	m.status = fmt.Sprintf("%d comments", len(msg.comments))
	return m, nil
}

func (m Model) applyCommentCreated(msg commentCreatedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = "comment failed: " + msg.err.Error()
		return m, nil
	}
	if msg.target == m.threadCard.Target {
		m.threadComments = append(m.threadComments, msg.comment)
		m.threadInput.SetValue("")
	}
	m.status = "comment posted"
	return m, nil
}

// handleThreadKey scrolls, posts, or leaves the thread. Other keys edit the composer.
func (m Model) handleThreadKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = m.threadBackMode
		m.threadInput.Blur()
		m.status = "ready"
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "pgup", "ctrl+u":
		m.threadScroll = max(0, m.threadScroll-m.threadViewportStep())
		return m, nil
	case "pgdown", "ctrl+d":
		m.threadScroll += m.threadViewportStep()
		return m, nil
	case "ctrl+r":
		m.status = "loading thread..."
		return m, m.loadThreadComments(m.threadCard.Target)
	case "ctrl+y":
		return m, m.copyCmd(m.threadCard.ID)
	case "enter":
		body := strings.TrimSpace(m.threadInput.Value())
		if body == "" {
			m.status = "comment is empty"
			return m, nil
		}
		m.status = "posting..."
		return m, m.createThreadComment(body)
	}
	var cmd tea.Cmd
	m.threadInput, cmd = m.threadInput.Update(msg)
	return m, cmd
}

// renderThread renders the description, comments, and composer.
func (m Model) renderThread(accent, muted, dim color.Color) string {
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))

	title := strings.TrimSpace(m.threadCard.Title)
	if title == "" {
		title = m.threadCard.ID
	}
	head := []string{
		titleStyle.Render(title),
		hintStyle.Render(fmt.Sprintf("%s %s • comments: %d", m.threadCard.Target.TargetType, m.threadCard.Target.TargetID, len(m.threadComments))),
		"",
	}

	wrapWidth := max(24, m.width-8)
	body := m.threadBodyLines(wrapWidth, sectionStyle, hintStyle)

	in := m.threadInput
	in.SetWidth(max(20, m.width-18))
	author := strings.TrimSpace(m.identity)
	if author == "" {
		author = app.DefaultActorID
	}
	tail := []string{
		"",
		lipgloss.NewStyle().Foreground(dim).Render("as "+author) + "  " + in.View(),
		hintStyle.Render("enter post • pgup/pgdown scroll • ctrl+r reload • ctrl+y copy id • esc back"),
	}

	bodyHeight := 12
	if m.height > 0 {
		bodyHeight = max(4, m.height-len(head)-len(tail)-10)
	}
	maxScroll := max(0, len(body)-bodyHeight)
	top := clamp(m.threadScroll, 0, maxScroll)
	visible := append([]string(nil), body[top:min(len(body), top+bodyHeight)]...)
	if len(visible) < bodyHeight {
		visible = append(visible, make([]string, bodyHeight-len(visible))...)
	}
	return strings.Join(append(append(head, visible...), tail...), "\n")
}

// threadBodyLines renders the description and comments as scrollable rows.
func (m Model) threadBodyLines(width int, sectionStyle, hintStyle lipgloss.Style) []string {
	lines := []string{sectionStyle.Render("Description")}
	if description := m.markdown.renderLines(m.threadCard.Description, width); len(description) > 0 {
		lines = append(lines, description...)
	} else {
		lines = append(lines, hintStyle.Render("(no description)"))
	}

	lines = append(lines, "", sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(m.threadComments))))
	if len(m.threadComments) == 0 {
		return append(lines, hintStyle.Render("(no comments yet)"))
	}
	for idx, comment := range m.threadComments {
		author := strings.TrimSpace(comment.AuthorName)
		if author == "" {
			author = comment.AuthorID
		}
		lines = append(lines, hintStyle.Render(fmt.Sprintf("%s • %s", author, formatThreadTimestamp(comment.CreatedAt))))
		rendered := m.markdown.renderLines(comment.BodyMarkdown, width)
		if len(rendered) == 0 {
			rendered = []string{"(empty comment)"}
		}
		for _, line := range rendered {
			lines = append(lines, "  "+line)
		}
		if idx < len(m.threadComments)-1 {
			lines = append(lines, "")
		}
	}
	return lines
}

func formatThreadTimestamp(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04")
}

// threadViewportStep returns one paging increment.
func (m Model) threadViewportStep() int {
	if m.height <= 0 {
		return 6
	}
	return max(3, m.height/3)
}
