package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Formatter applies semantic formatting to text.
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

// Sprint formats the arguments and returns the resulting string.
func (f Formatter) Sprint(a ...interface{}) string {
	return f.render(fmt.Sprint(a...))
}

// Sprintf formats according to a format specifier and returns the resulting string.
func (f Formatter) Sprintf(format string, a ...interface{}) string {
	return f.render(fmt.Sprintf(format, a...))
}

func (f Formatter) render(text string) string {
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

// EnsureNewline ensures the string ends with a newline character.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// noColor reports whether output should be undecorated by ANSI colors.
func noColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	return color.NoColor
}

var (
	// Cookbook formats artifact names.
	Cookbook = Formatter{color.New(color.FgCyan, color.Bold), "'", "'"}

	// Version formats artifact versions.
	Version = Formatter{color.New(color.FgMagenta), "@", ""}

	// Path formats file paths and URLs.
	Path = Formatter{color.New(color.FgYellow), "", ""}

	// Code formats commands the user can run.
	Code = Formatter{color.New(color.FgYellow), "`", "`"}

	Success = Formatter{color.New(color.FgGreen), "", ""}
	Error   = Formatter{color.New(color.FgRed), "", ""}
	Warning = Formatter{color.New(color.FgYellow), "", ""}
	Info    = Formatter{color.New(color.FgCyan), "", ""}

	// Muted formats secondary details.
	Muted = Formatter{color.New(color.FgHiBlack), "(", ")"}
)

// SuccessMark, FailureMark and HintMark are the glyphs that lead summary lines.
func SuccessMark() string { return Success.Sprint("✓") }
func FailureMark() string { return Error.Sprint("✗") }
func HintMark() string    { return Info.Sprint("→") }
