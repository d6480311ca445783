package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/client"
	"github.com/hylla/pipedesk/internal/domain"
)

// inputMode describes which screen or modal owns key input.
type inputMode int

const (
	modeNone inputMode = iota
	modeSettings
	modeTree
	modeThread
	modePrompt
	modeConfirm
)

// promptAction identifies what a submitted prompt value is used for.
type promptAction int

const (
	promptNewFunnel promptAction = iota
	promptRenameFunnel
	promptNewStage
	promptRenameStage
	promptTreeFilter
)

// confirmKind identifies a destructive action awaiting confirmation.
type confirmKind int

const (
	confirmDeleteFunnel confirmKind = iota
	confirmDeleteStage
)

type confirmAction struct {
	kind  confirmKind
	id    string
	label string
}

// Model is the bubbletea model for the funnel board.
type Model struct {
	api    client.API
	scope  domain.FunnelScope
	editor *client.Editor
	board  kanban

	funnelID string
	laneIdx  int
	cardIdx  int
	focusID  string
	stageIdx int

	mode         inputMode
	backMode     inputMode
	prompt       promptAction
	promptTarget string
	promptTitle  string
	input        textinput.Model
	confirm      confirmAction

	treeNodes []domain.TreeNode
	treeOpen  map[string]bool
	treeQuery string
	treeTotal int
	treeIdx   int

	threadCard     card
	threadBackMode inputMode
	threadComments []domain.Comment
	threadInput    textinput.Model
	threadScroll   int

	markdown *markdownRenderer
	help     help.Model
	keys     keyMap

	width  int
	height int
	ready  bool
	status string
	err    error

	copyToClipboard ClipboardFunc
	identity        string
}

// loadedMsg carries a freshly loaded funnel list and board.
type loadedMsg struct {
	board    kanban
	funnelID string
	err      error
}

// boardActionMsg reports a finished card move.
type boardActionMsg struct {
	verb   string
	cardID string
	result outcome
}

// editorActionMsg reports a finished funnel or stage edit.
type editorActionMsg struct {
	verb        string
	result      client.Result
	focusFunnel string
}

// treeLoadedMsg carries the project hierarchy for tree mode.
type treeLoadedMsg struct {
	query string
	view  app.TreeView
	err   error
}

// clipboardMsg reports a clipboard write.
type clipboardMsg struct {
	text string
	err  error
}

// NewModel constructs a board model over api.
func NewModel(api client.API, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		api:             api,
		scope:           domain.ScopeProject,
		status:          "loading...",
		help:            h,
		keys:            newKeyMap(),
		markdown:        &markdownRenderer{style: "dark"},
		treeOpen:        map[string]bool{},
		copyToClipboard: systemClipboard,
		threadInput:     newModalInput("", "write a markdown comment, enter to post", "", 4000),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.editor = client.NewEditor(api, m.scope)
	return m
}

// Init loads the first board.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update routes messages to the active mode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(max(0, msg.Width-2))
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.board = msg.board
		m.funnelID = msg.funnelID
		if m.status == "loading..." || m.status == "reloading..." {
			m.status = "ready"
		}
		m.clampStageSelection()
		return m, nil

	case boardActionMsg:
		switch msg.result.Outcome {
		case client.OutcomePending:
			m.status = "still saving, try again"
		case client.OutcomeFailed:
			m.status = "move failed, board reloaded: " + errorText(msg.result.Err)
		default:
			if msg.result.Changed {
				m.status = msg.verb
			} else {
				m.status = "no change"
			}
		}
		return m, nil

	case editorActionMsg:
		switch msg.result.Outcome {
		case client.OutcomePending:
			m.status = "still saving, try again"
			return m, nil
		case client.OutcomeFailed:
			m.status = failureStatus(msg.result.Err)
			return m, m.loadData
		}
		if msg.focusFunnel != "" {
			m.funnelID = msg.focusFunnel
		}
		if !msg.result.Changed {
			m.status = "no change"
			return m, nil
		}
		m.status = msg.verb
		return m, m.loadData

	case treeLoadedMsg:
		return m.applyTreeLoaded(msg)

	case threadLoadedMsg:
		return m.applyThreadLoaded(msg)

	case commentCreatedMsg:
		return m.applyCommentCreated(msg)

	case clipboardMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "copied " + msg.text
		return m, nil

	case tea.KeyPressMsg:
		if m.help.ShowAll {
			if msg.String() == "esc" || key.Matches(msg, m.keys.toggleHelp) {
				m.help.ShowAll = false
			}
			return m, nil
		}
		switch m.mode {
		case modePrompt:
			return m.handlePromptKey(msg)
		case modeConfirm:
			return m.handleConfirmKey(msg)
		case modeSettings:
			return m.handleSettingsKey(msg)
		case modeTree:
			return m.handleTreeKey(msg)
		case modeThread:
			return m.handleThreadKey(msg)
		default:
			return m.handleBoardKey(msg)
		}
	}

	var cmd tea.Cmd
	switch m.mode {
	case modePrompt:
		m.input, cmd = m.input.Update(msg)
	case modeThread:
		m.threadInput, cmd = m.threadInput.Update(msg)
	}
	return m, cmd
}

// loadData reloads the funnel list and the board for the selected funnel.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	if err := m.editor.Load(ctx); err != nil {
		return loadedMsg{err: err}
	}
	funnels := m.editor.Funnels()
	if len(funnels) == 0 {
		return loadedMsg{}
	}
	funnelID := funnels[0].ID
	for _, funnel := range funnels {
		if funnel.ID == m.funnelID {
			funnelID = funnel.ID
			break
		}
	}
	board := newKanban(m.api, m.scope, funnelID)
	if err := board.Load(ctx); err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{board: board, funnelID: funnelID}
}

// handleBoardKey handles keys on the kanban board.
func (m Model) handleBoardKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
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
		return m.switchScope()
	case key.Matches(msg, m.keys.settings):
		m.mode = modeSettings
		m.clampStageSelection()
		m.status = "funnel settings"
		return m, nil
	case key.Matches(msg, m.keys.tree):
		return m.startTree()
	case key.Matches(msg, m.keys.nextFunnel):
		return m.cycleFunnel(1)
	}
	if m.board == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.moveLeft):
		m.moveLane(-1)
	case key.Matches(msg, m.keys.moveRight):
		m.moveLane(1)
	case key.Matches(msg, m.keys.moveUp):
		m.moveCard(-1)
	case key.Matches(msg, m.keys.moveDown):
		m.moveCard(1)
	case key.Matches(msg, m.keys.cardLeft):
		return m.shiftCard(-1)
	case key.Matches(msg, m.keys.cardRight):
		return m.shiftCard(1)
	case key.Matches(msg, m.keys.unassign):
		c, ok := m.selectedCard()
		if !ok {
			m.status = "no card selected"
			return m, nil
		}
		return m.runBoardAction("removed "+c.Title+" from funnel", c.ID, func(ctx context.Context, b kanban) outcome {
			return b.Unassign(ctx, c.ID)
		})
	case key.Matches(msg, m.keys.pull):
		c, ok := m.selectedCard()
		if !ok {
			m.status = "no card selected"
			return m, nil
		}
		return m.runBoardAction("moved "+c.Title+" onto funnel", c.ID, func(ctx context.Context, b kanban) outcome {
			return b.MoveToFunnel(ctx, c.ID)
		})
	case key.Matches(msg, m.keys.copyID):
		c, ok := m.selectedCard()
		if !ok {
			m.status = "no card selected"
			return m, nil
		}
		return m, m.copyCmd(c.ID)
	case key.Matches(msg, m.keys.openThread):
		c, ok := m.selectedCard()
		if !ok {
			m.status = "no card selected"
			return m, nil
		}
		return m.startThread(modeNone, c)
	}
	return m, nil
}

// shiftCard moves the selected card one lane left or right.
func (m Model) shiftCard(delta int) (tea.Model, tea.Cmd) {
	lanes := m.lanes()
	li, ci := m.selection(lanes)
	if len(lanes) == 0 || ci >= len(lanes[li].Cards) {
		m.status = "no card selected"
		return m, nil
	}
	c := lanes[li].Cards[ci]
	switch lanes[li].Kind {
	case laneElsewhere:
		return m.runBoardAction("moved "+c.Title+" onto funnel", c.ID, func(ctx context.Context, b kanban) outcome {
			return b.MoveToFunnel(ctx, c.ID)
		})
	case laneUnassigned:
		if delta < 0 {
			return m.runBoardAction("removed "+c.Title+" from funnel", c.ID, func(ctx context.Context, b kanban) outcome {
				return b.Unassign(ctx, c.ID)
			})
		}
	}
	target := li + delta
	if target < 0 || target >= len(lanes) || lanes[target].Kind != laneStage {
		m.status = "no stage that way"
		return m, nil
	}
	stage := lanes[target]
	m.laneIdx = target
	return m.runBoardAction("moved "+c.Title+" to "+stage.Name, c.ID, func(ctx context.Context, b kanban) outcome {
		return b.Drop(ctx, c.ID, stage.StageID)
	})
}

// runBoardAction runs fn against the board and keeps the card focused wherever it lands.
func (m Model) runBoardAction(verb, cardID string, fn func(context.Context, kanban) outcome) (tea.Model, tea.Cmd) {
	board := m.board
	if board.InFlight(cardID) {
		m.status = "still saving, try again"
		return m, nil
	}
	m.focusID = cardID
	m.status = "saving..."
	return m, func() tea.Msg {
		return boardActionMsg{verb: verb, cardID: cardID, result: fn(context.Background(), board)}
	}
}

// switchScope flips between project and subproject funnels.
func (m Model) switchScope() (tea.Model, tea.Cmd) {
	if m.scope == domain.ScopeProject {
		m.scope = domain.ScopeSubProject
	} else {
		m.scope = domain.ScopeProject
	}
	m.editor = client.NewEditor(m.api, m.scope)
	m.board = nil
	m.funnelID = ""
	m.focusID = ""
	m.laneIdx, m.cardIdx, m.stageIdx = 0, 0, 0
	m.status = "loading..."
	return m, m.loadData
}

// cycleFunnel selects the next or previous funnel in the current scope.
func (m Model) cycleFunnel(delta int) (tea.Model, tea.Cmd) {
	funnels := m.editor.Funnels()
	if len(funnels) == 0 {
		m.status = "no funnels"
		return m, nil
	}
	idx := 0
	for i, funnel := range funnels {
		if funnel.ID == m.funnelID {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(funnels)) % len(funnels)
	m.funnelID = funnels[idx].ID
	m.focusID = ""
	m.laneIdx, m.cardIdx, m.stageIdx = 0, 0, 0
	m.status = "loading..."
	return m, m.loadData
}

// copyCmd writes text to the clipboard.
func (m Model) copyCmd(text string) tea.Cmd {
	write := m.copyToClipboard
	return func() tea.Msg {
		return clipboardMsg{text: text, err: write(text)}
	}
}

// lanes returns the rendered board lanes.
func (m Model) lanes() []lane {
	if m.board == nil {
		return nil
	}
	return m.board.Lanes()
}

// selection resolves the focused lane and card, following the focused card id across lanes.
func (m Model) selection(lanes []lane) (int, int) {
	if m.focusID != "" {
		for li, ln := range lanes {
			for ci, c := range ln.Cards {
				if c.ID == m.focusID {
					return li, ci
				}
			}
		}
	}
	if len(lanes) == 0 {
		return 0, 0
	}
	li := clamp(m.laneIdx, 0, len(lanes)-1)
	ci := clamp(m.cardIdx, 0, max(0, len(lanes[li].Cards)-1))
	return li, ci
}

// selectedCard returns the focused card.
func (m Model) selectedCard() (card, bool) {
	lanes := m.lanes()
	li, ci := m.selection(lanes)
	if len(lanes) == 0 || ci >= len(lanes[li].Cards) {
		return card{}, false
	}
	return lanes[li].Cards[ci], true
}

// focus moves the cursor to lane li, card ci.
func (m *Model) focus(lanes []lane, li, ci int) {
	m.laneIdx = li
	m.cardIdx = ci
	m.focusID = ""
	if li >= 0 && li < len(lanes) && ci >= 0 && ci < len(lanes[li].Cards) {
		m.focusID = lanes[li].Cards[ci].ID
	}
}

func (m *Model) moveLane(delta int) {
	lanes := m.lanes()
	if len(lanes) == 0 {
		return
	}
	li, ci := m.selection(lanes)
	next := clamp(li+delta, 0, len(lanes)-1)
	m.focus(lanes, next, clamp(ci, 0, max(0, len(lanes[next].Cards)-1)))
}

func (m *Model) moveCard(delta int) {
	lanes := m.lanes()
	if len(lanes) == 0 {
		return
	}
	li, ci := m.selection(lanes)
	m.focus(lanes, li, clamp(ci+delta, 0, max(0, len(lanes[li].Cards)-1)))
}

// currentFunnel returns the selected funnel from the editor snapshot.
func (m Model) currentFunnel() (domain.Funnel, bool) {
	if m.funnelID == "" {
		return domain.Funnel{}, false
	}
	return m.editor.Funnel(m.funnelID)
}

// View renders the active screen.
func (m Model) View() tea.View {
	v := tea.NewView(m.viewContent())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// viewContent returns the error screen, the loading line, or the active screen.
func (m Model) viewContent() string {
	switch {
	case m.err != nil:
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	case !m.ready:
		return "loading..."
	default:
		return m.renderContent()
	}
}

// renderContent renders header, body, footer, and any open overlay.
func (m Model) renderContent() string {
	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	helpStyle := lipgloss.NewStyle().Foreground(muted)
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	header := titleStyle.Render("pipedesk")
	if funnel, ok := m.currentFunnel(); ok {
		header += "  " + funnel.Name
	}
	header += statusStyle.Render("  [" + m.modeLabel() + "]")
	header += statusStyle.Render("  scope: " + scopeLabel(m.scope))

	sections := []string{header}
	if tabs := m.renderFunnelTabs(accent, dim); tabs != "" {
		sections = append(sections, tabs)
	}
	sections = append(sections, "")

	switch m.screenMode() {
	case modeSettings:
		sections = append(sections, m.renderSettings(accent, muted, dim))
	case modeTree:
		sections = append(sections, m.renderTree(accent, muted, dim))
	case modeThread:
		sections = append(sections, m.renderThread(accent, muted, dim))
	default:
		sections = append(sections, m.renderBoard(accent, muted, dim))
	}
	content := strings.Join(sections, "\n")

	statusLine := ""
	if status := strings.TrimSpace(m.status); status != "" && status != "ready" {
		statusLine = statusStyle.Render(status)
	}
	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
	footer := helpLine
	if statusLine != "" {
		footer = statusLine + "\n" + helpLine
	}

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(footer)))
	}
	fullContent := content + "\n" + footer

	if overlay := m.renderModeOverlay(accent, muted, dim, helpStyle, m.width-8); overlay != "" {
		overlayHeight := lipgloss.Height(fullContent)
		if m.height > 0 {
			overlayHeight = m.height
		}
		fullContent = overlayOnContent(fullContent, overlay, max(1, m.width), max(1, overlayHeight))
	}
	return fullContent
}

// screenMode returns the screen drawn beneath prompts and confirmations.
func (m Model) screenMode() inputMode {
	if m.mode == modePrompt || m.mode == modeConfirm {
		return m.backMode
	}
	return m.mode
}

// renderFunnelTabs renders the funnel names when there is more than one.
func (m Model) renderFunnelTabs(accent, dim color.Color) string {
	funnels := m.editor.Funnels()
	if len(funnels) < 2 {
		return ""
	}
	active := lipgloss.NewStyle().Bold(true).Foreground(accent)
	inactive := lipgloss.NewStyle().Foreground(dim)
	tabs := make([]string, 0, len(funnels))
	for _, funnel := range funnels {
		if funnel.ID == m.funnelID {
			tabs = append(tabs, active.Render("["+funnel.Name+"]"))
			continue
		}
		tabs = append(tabs, inactive.Render(funnel.Name))
	}
	return strings.Join(tabs, "  ")
}

// renderBoard renders the visible lanes side by side.
func (m Model) renderBoard(accent, muted, dim color.Color) string {
	if m.board == nil {
		return strings.Join([]string{
			"No " + scopeLabel(m.scope) + " funnels yet.",
			"Press S then N to create one, or s to switch scope.",
		}, "\n")
	}
	lanes := m.lanes()
	li, ci := m.selection(lanes)

	colWidth := columnWidthFor(m.width, len(lanes))
	colHeight := m.columnHeight()
	perPage := len(lanes)
	if m.width > 0 {
		perPage = clamp(m.width/(colWidth+colOverhead), 1, len(lanes))
	}
	start := 0
	if li >= perPage {
		start = li - perPage + 1
	}

	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(1, 2).
		MarginRight(1).
		Width(colWidth)
	selColStyle := baseColStyle.BorderForeground(accent)
	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	laneTitle := lipgloss.NewStyle().Bold(true).Foreground(muted)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	itemSubStyle := lipgloss.NewStyle().Foreground(muted)

	columnViews := make([]string, 0, perPage)
	for idx := start; idx < len(lanes) && idx < start+perPage; idx++ {
		ln := lanes[idx]
		titleStyle := colTitle
		if ln.Kind != laneStage {
			titleStyle = laneTitle
		}
		lines := []string{titleStyle.Render(fmt.Sprintf("%s (%d)", truncate(ln.Name, colWidth-6), len(ln.Cards))), ""}
		if len(ln.Cards) == 0 {
			lines = append(lines, emptyStyle.Render("(empty)"))
		}
		for cidx, c := range ln.Cards {
			name := truncate(c.Title, colWidth-4)
			if m.board.InFlight(c.ID) {
				name += " …"
			}
			if idx == li && cidx == ci {
				lines = append(lines, selectedStyle.Render("› "+name))
			} else {
				lines = append(lines, "  "+name)
			}
			if c.Detail != "" {
				lines = append(lines, itemSubStyle.Render("  "+truncate(c.Detail, colWidth-4)))
			}
		}
		style := baseColStyle
		if idx == li {
			style = selColStyle
		}
		columnViews = append(columnViews, style.Render(fitLines(strings.Join(lines, "\n"), colHeight)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)
}

// renderModeOverlay renders the help, prompt, or confirmation box, if any.
func (m Model) renderModeOverlay(accent, muted, dim color.Color, helpStyle lipgloss.Style, maxWidth int) string {
	if m.help.ShowAll {
		return m.renderHelpOverlay(accent, muted, dim, helpStyle, maxWidth)
	}
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1)
	if maxWidth > 0 {
		boxStyle = boxStyle.Width(clamp(maxWidth, 32, 72))
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	switch m.mode {
	case modePrompt:
		in := m.input
		in.SetWidth(max(16, clamp(maxWidth, 32, 72)-6))
		return boxStyle.Render(strings.Join([]string{
			titleStyle.Render(m.promptTitle),
			in.View(),
			hintStyle.Render("enter save • esc cancel"),
		}, "\n"))
	case modeConfirm:
		what := "funnel"
		if m.confirm.kind == confirmDeleteStage {
			what = "stage"
		}
		return boxStyle.Render(strings.Join([]string{
			titleStyle.Render("Delete " + what + "?"),
			fmt.Sprintf("%q will be removed.", m.confirm.label),
			hintStyle.Render("y confirm • n/esc cancel"),
		}, "\n"))
	}
	return ""
}

// renderHelpOverlay renders the full key reference.
func (m Model) renderHelpOverlay(accent, muted, dim color.Color, _ lipgloss.Style, maxWidth int) string {
	width := clamp(maxWidth, 56, 100)
	hb := m.help
	hb.ShowAll = true
	hb.SetWidth(width - 4)

	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render("pipedesk help")
	workflow := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accent).Render("Workflows"),
		"1. [ ] move a card between stages  •  x take it off the funnel  •  m pull it back on",
		"2. f cycle funnels  •  s switch between project and subproject funnels",
		"3. S settings: N/R/D funnels  •  n/e/d stages  •  K/J reorder stages",
		"4. t tree: enter expand  •  / filter  •  c comments",
		"5. enter on a card opens its description and comments",
	}
	lines := []string{
		title,
		"",
		hb.View(m.keys),
		"",
		lipgloss.NewStyle().Foreground(muted).Render(strings.Join(workflow, "\n")),
		lipgloss.NewStyle().Foreground(muted).Render("press ? or esc to close"),
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1)
	if maxWidth > 0 {
		style = style.Width(width)
	}
	return style.Render(strings.Join(lines, "\n"))
}

// modeLabel names the active mode in the header.
func (m Model) modeLabel() string {
	switch m.mode {
	case modeSettings:
		return "settings"
	case modeTree:
		return "tree"
	case modeThread:
		return "thread"
	case modePrompt:
		return "edit"
	case modeConfirm:
		return "confirm"
	default:
		return "board"
	}
}

// startPrompt opens the text prompt over the current screen.
func (m Model) startPrompt(action promptAction, target, title, placeholder, value string) (tea.Model, tea.Cmd) {
	m.backMode = m.mode
	m.mode = modePrompt
	m.prompt = action
	m.promptTarget = target
	m.promptTitle = title
	m.input = newModalInput("> ", placeholder, value, 120)
	m.input.CursorEnd()
	m.input.Focus()
	return m, nil
}

// handlePromptKey edits, submits, or cancels the prompt.
func (m Model) handlePromptKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = m.backMode
		m.input.Blur()
		m.status = "cancelled"
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		m.mode = m.backMode
		m.input.Blur()
		return m.submitPrompt(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitPrompt applies a prompt value.
func (m Model) submitPrompt(value string) (tea.Model, tea.Cmd) {
	if m.prompt == promptTreeFilter {
		m.treeQuery = value
		m.treeIdx = 0
		m.status = "filtering..."
		return m, m.loadTree(value)
	}
	if value == "" {
		m.status = "name is required"
		return m, nil
	}
	target := m.promptTarget
	funnelID := m.funnelID
	switch m.prompt {
	case promptNewFunnel:
		return m.runEditorAction("created funnel "+value, true, func(ctx context.Context, e *client.Editor) client.Result {
			return e.CreateFunnel(ctx, value)
		})
	case promptRenameFunnel:
		return m.runEditorAction("renamed funnel to "+value, false, func(ctx context.Context, e *client.Editor) client.Result {
			return e.RenameFunnel(ctx, target, value)
		})
	case promptNewStage:
		return m.runEditorAction("added stage "+value, false, func(ctx context.Context, e *client.Editor) client.Result {
			return e.CreateStage(ctx, funnelID, value)
		})
	case promptRenameStage:
		return m.runEditorAction("renamed stage to "+value, false, func(ctx context.Context, e *client.Editor) client.Result {
			return e.RenameStage(ctx, target, value)
		})
	}
	return m, nil
}

// handleConfirmKey confirms or cancels a pending delete.
func (m Model) handleConfirmKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	m.mode = m.backMode
	if msg.String() != "y" && msg.String() != "enter" {
		m.status = "cancelled"
		return m, nil
	}
	pending := m.confirm
	switch pending.kind {
	case confirmDeleteFunnel:
		return m.runEditorAction("deleted funnel "+pending.label, false, func(ctx context.Context, e *client.Editor) client.Result {
			return e.DeleteFunnel(ctx, pending.id)
		})
	default:
		return m.runEditorAction("deleted stage "+pending.label, false, func(ctx context.Context, e *client.Editor) client.Result {
			return e.DeleteStage(ctx, pending.id)
		})
	}
}

// startConfirm asks before a destructive action.
func (m Model) startConfirm(kind confirmKind, id, label string) (tea.Model, tea.Cmd) {
	m.backMode = m.mode
	m.mode = modeConfirm
	m.confirm = confirmAction{kind: kind, id: id, label: label}
	return m, nil
}

// runEditorAction runs fn against the funnel editor. When focusNew is set the newest funnel
// becomes the selected one.
func (m Model) runEditorAction(verb string, focusNew bool, fn func(context.Context, *client.Editor) client.Result) (tea.Model, tea.Cmd) {
	editor := m.editor
	m.status = "saving..."
	return m, func() tea.Msg {
		res := fn(context.Background(), editor)
		msg := editorActionMsg{verb: verb, result: res}
		if focusNew && res.Changed {
			if funnels := editor.Funnels(); len(funnels) > 0 {
				msg.focusFunnel = funnels[len(funnels)-1].ID
			}
		}
		return msg
	}
}

// failureStatus turns an action error into a status line.
func failureStatus(err error) string {
	if errors.Is(err, client.ErrFunnelDeleteFailed) {
		return client.ErrFunnelDeleteFailed.Error()
	}
	return "error: " + errorText(err)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func scopeLabel(scope domain.FunnelScope) string {
	if scope == domain.ScopeSubProject {
		return "subprojects"
	}
	return "projects"
}

// newModalInput builds a prompt-style text input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// colOverhead is a column's border (2), horizontal padding (4), and right margin (1).
const colOverhead = 7

// columnWidthFor returns the lane width that fits count lanes in boardWidth.
func columnWidthFor(boardWidth, count int) int {
	if count == 0 {
		return 24
	}
	w := 28
	if boardWidth > 0 {
		usable := boardWidth - count*colOverhead
		if candidate := usable / count; candidate > 0 {
			w = candidate
		}
	}
	return clamp(w, 24, 42)
}

// columnHeight returns the lane content height.
func (m Model) columnHeight() int {
	headerLines := 3
	if len(m.editor.Funnels()) > 1 {
		headerLines++
	}
	footerLines := 6
	return max(8, m.height-headerLines-footerLines-4)
}

func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or cuts content to exactly maxLines rows.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlay,
	)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
