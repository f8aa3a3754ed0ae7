package tui

import (
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// Terminal reports whether f is a terminal and its width in columns.
func Terminal(f *os.File) (isTTY bool, width int) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return false, DefaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return true, DefaultWidth
	}
	return true, w
}
