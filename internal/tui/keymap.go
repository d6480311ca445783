package tui

import "charm.land/bubbles/v2/key"

// keyMap holds every binding across board, funnel settings, tree, and thread modes.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding

	moveLeft  key.Binding
	moveRight key.Binding
	moveUp    key.Binding
	moveDown  key.Binding

	cardLeft   key.Binding
	cardRight  key.Binding
	unassign   key.Binding
	pull       key.Binding
	copyID     key.Binding
	openThread key.Binding

	nextFunnel  key.Binding
	toggleScope key.Binding
	settings    key.Binding
	tree        key.Binding

	newFunnel    key.Binding
	renameFunnel key.Binding
	deleteFunnel key.Binding
	newStage     key.Binding
	renameStage  key.Binding
	deleteStage  key.Binding
	stageUp      key.Binding
	stageDown    key.Binding

	search key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),

		moveLeft:  key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		moveRight: key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		moveUp:    key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:  key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),

		cardLeft:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "card to previous stage")),
		cardRight:  key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "card to next stage")),
		unassign:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove from funnel")),
		pull:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "pull onto funnel")),
		copyID:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
		openThread: key.NewBinding(key.WithKeys("enter", "c"), key.WithHelp("enter/c", "details & comments")),

		nextFunnel:  key.NewBinding(key.WithKeys("f", "tab"), key.WithHelp("f/tab", "next funnel")),
		toggleScope: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "projects/subprojects")),
		settings:    key.NewBinding(key.WithKeys("S", "shift+s"), key.WithHelp("S", "funnel settings")),
		tree:        key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "subproject tree")),

		newFunnel:    key.NewBinding(key.WithKeys("N", "shift+n"), key.WithHelp("N", "new funnel")),
		renameFunnel: key.NewBinding(key.WithKeys("R", "shift+r"), key.WithHelp("R", "rename funnel")),
		deleteFunnel: key.NewBinding(key.WithKeys("D", "shift+d"), key.WithHelp("D", "delete funnel")),
		newStage:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new stage")),
		renameStage:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "rename stage")),
		deleteStage:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete stage")),
		stageUp:      key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "stage earlier")),
		stageDown:    key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "stage later")),

		search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter tree")),
	}
}

// ShortHelp returns the footer bindings.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.cardLeft, k.cardRight, k.unassign, k.openThread, k.nextFunnel, k.settings, k.tree, k.quit,
	}
}

// FullHelp returns grouped bindings for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown, k.cardLeft, k.cardRight, k.unassign, k.pull, k.copyID, k.openThread},
		{k.nextFunnel, k.toggleScope, k.settings, k.tree, k.search, k.reload, k.toggleHelp, k.quit},
		{k.newFunnel, k.renameFunnel, k.deleteFunnel, k.newStage, k.renameStage, k.deleteStage, k.stageUp, k.stageDown},
	}
}
