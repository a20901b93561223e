package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the teleprompter bindings.
type KeyMap struct {
	Restart key.Binding
	Mic     key.Binding
	Skip    key.Binding
	Devices key.Binding
	Quit    key.Binding
}

// DefaultKeys binds single letters to the controls.
var DefaultKeys = KeyMap{
	Restart: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "start/restart"),
	),
	Mic: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mic"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip word"),
	),
	Devices: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "devices"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

// TypingKeys moves the controls to ctrl chords so letters reach the
// keyboard recognizer.
var TypingKeys = KeyMap{
	Restart: DefaultKeys.Restart,
	Mic: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("C-l", "listen"),
	),
	Skip: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("C-s", "skip word"),
	),
	Devices: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("C-d", "devices"),
	),
	Quit: DefaultKeys.Quit,
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Restart, k.Mic, k.Skip, k.Devices, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
