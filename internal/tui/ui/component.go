package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is implemented by every page so the shell can label it and show
// its shortcuts.
type Component interface {
	Name() string
	Hints() []MenuHint
}
