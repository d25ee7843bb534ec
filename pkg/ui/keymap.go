package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pause key.Binding
	Quit  key.Binding
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "pause refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
