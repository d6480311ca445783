package tui

import (
	"github.com/atotto/clipboard"
	"github.com/hylla/pipedesk/internal/domain"
)

// Option configures a Model.
type Option func(*Model)

// ClipboardFunc writes text to the system clipboard.
type ClipboardFunc func(string) error

// WithScope selects the funnel scope shown first.
func WithScope(scope domain.FunnelScope) Option {
	return func(m *Model) {
		if scope == domain.ScopeSubProject {
			m.scope = domain.ScopeSubProject
			return
		}
		m.scope = domain.ScopeProject
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn ClipboardFunc) Option {
	return func(m *Model) {
		if fn != nil {
			m.copyToClipboard = fn
		}
	}
}

// WithIdentity sets the name shown as the comment author in the composer.
func WithIdentity(name string) Option {
	return func(m *Model) {
		m.identity = name
	}
}

// WithMarkdownStyle selects the glamour style for descriptions and comments.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) {
		if style != "" {
			m.markdown.style = style
		}
	}
}

func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
