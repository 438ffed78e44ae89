package utils

import (
	"os"

	"golang.org/x/term"
)

// IsStdoutTerminal returns true if stdout is attached to a terminal.
func IsStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
