package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// LoginKeyMap defines the key bindings of the login screen.
type LoginKeyMap struct {
	Open key.Binding
	Quit key.Binding
}

// DefaultLoginKeyMap returns the default login key bindings.
func DefaultLoginKeyMap() LoginKeyMap {
	return LoginKeyMap{
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open browser"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "cancel"),
		),
	}
}

// ShortHelp renders the bindings as "[key] desc" pairs.
func (k LoginKeyMap) ShortHelp(canOpen bool) string {
	bindings := []key.Binding{k.Quit}
	if canOpen {
		bindings = []key.Binding{k.Open, k.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, "["+h.Key+"] "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
