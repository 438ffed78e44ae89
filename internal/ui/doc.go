// Package ui provides semantic text formatting for pantry's CLI output.
//
// Formatters colorize content when the terminal supports it and fall back
// to plain text decorations when NO_COLOR is set or output is not a TTY:
//
//	ui.Cookbook.Sprint("apache2")        // 'apache2' without color
//	ui.Version.Sprint("1.2.0")           // @1.2.0 without color
//	ui.Path.Sprint("~/.chef/knife.rb")   // no decoration
//	ui.Muted.Sprint("cached")            // (cached) without color
//
// The Mark helpers render the status glyphs used in command summaries.
package ui
