package viewer

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the viewer's key bindings
type keyMap struct {
	Open      key.Binding
	Advance   key.Binding
	Retreat   key.Binding
	DriftUp   key.Binding
	DriftDown key.Binding
	Exit      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Advance: key.NewBinding(
			key.WithKeys("right", "l", " "),
			key.WithHelp("→/l", "next"),
		),
		Retreat: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev"),
		),
		DriftUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "drift up"),
		),
		DriftDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "drift down"),
		),
		Exit: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "covers"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Advance, k.Retreat, k.DriftUp, k.DriftDown, k.Exit, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Open, k.Exit, k.Quit}, {k.Advance, k.Retreat, k.DriftUp, k.DriftDown}}
}
