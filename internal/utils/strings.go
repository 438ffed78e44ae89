package utils

import (
	"fmt"
	"strings"

	"github.com/PolarWolf314/pantry/internal/ui"
)

// FormatPaths formats a slice of paths into an indented list.
func FormatPaths(paths []string) string {
	var b strings.Builder
	for _, path := range paths {
		b.WriteString("    - ")
		b.WriteString(ui.Path.Sprint(path))
		b.WriteString("\n")
	}
	return b.String()
}

// Plural renders a count with a singular or plural noun.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
