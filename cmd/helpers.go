package cmd

import (
	"fmt"
	"time"

	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/utils"

	"github.com/briandowns/spinner"
)

// startSpinner shows a spinner with message while a command runs. The
// spinner only animates on a terminal and outside verbose or debug mode, so
// log lines and piped output stay readable. The returned cleanup prints
// FinalMSG, if set, after stopping the spinner.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	err := s.Color("cyan")
	if err != nil {
		// If we can't set spinner color, just continue without it.
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	animate := !verbose && !debug && utils.IsStdoutTerminal()
	if animate {
		s.Start()
	} else {
		Logger.Infof("%s", message)
	}

	cleanup := func() {
		// Ensure final message ends with a newline.
		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		// Stop the spinner first to clear the spinner line.
		if animate {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// setSpinnerSuffix updates the spinner text from another goroutine.
func setSpinnerSuffix(s *spinner.Spinner, message string) {
	s.Lock()
	s.Suffix = " " + message
	s.Unlock()
}
