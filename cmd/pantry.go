package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/PolarWolf314/pantry/internal/configs"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	vaultMode  vaultModeFlag
	verbose    bool
	debug      bool
	Logger     logger.Logger

	// exitCode is set by commands that finish with a partial result.
	exitCode = kerrors.ExitOK
)

// Commands returns the top-level commands in the order they are listed.
func Commands() []*cobra.Command {
	return []*cobra.Command{SyncCmd, AuthCmd, ConfigCmd, CacheCmd, LogCmd, DoctorCmd}
}

// addCommonFlags registers the flags every command shares and the logger
// setup that depends on them.
func addCommonFlags(c *cobra.Command) {
	c.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to knife.rb or knife.toml (default: $PANTRY_CONFIG, then .chef/knife.rb)")
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	c.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	c.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Logger = logger.Logger{
			Verbose: verbose || debug,
			Debug:   debug,
		}
		Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)
	}
}

func configOptions() workflows.ConfigOptions {
	return workflows.ConfigOptions{
		ConfigPath: configPath,
		VaultMode:  configs.VaultMode(vaultMode),
	}
}

// vaultModeFlag validates --vault-mode as it is parsed.
type vaultModeFlag string

var _ pflag.Value = (*vaultModeFlag)(nil)

func (v *vaultModeFlag) String() string { return string(*v) }

func (v *vaultModeFlag) Set(s string) error {
	mode, err := configs.ParseVaultMode(s)
	if err != nil {
		return err
	}
	*v = vaultModeFlag(mode)
	return nil
}

func (v *vaultModeFlag) Type() string { return "client|solo" }

// shownError marks an error whose message has already been printed.
type shownError struct {
	error
}

func (e shownError) Unwrap() error { return e.error }

// Exit reports err if it has not been shown yet and returns the process exit
// code for the run.
func Exit(err error) int {
	if err == nil {
		return exitCode
	}
	var shown shownError
	if !errors.As(err, &shown) {
		fmt.Fprintln(os.Stderr, ui.FailureMark()+" "+err.Error())
	}
	return kerrors.ExitCode(err)
}

// formatError renders a workflow error with a hint for the common causes.
func formatError(what string, err error) string {
	msg := ui.FailureMark() + " " + what + "\n" + ui.Error.Sprint("Error: ") + err.Error()
	switch {
	case errors.Is(err, kerrors.ErrConfig):
		msg += "\n" + ui.HintMark() + " Check the configuration, or pass " + ui.Code.Sprint("--config")
	case errors.Is(err, kerrors.ErrAuth):
		msg += "\n" + ui.HintMark() + " Check " + ui.Code.Sprint("client_key") + ", or configure " +
			ui.Code.Sprint("validation_key") + " to register this client"
	case errors.Is(err, kerrors.ErrNetwork):
		msg += "\n" + ui.HintMark() + " Check " + ui.Code.Sprint("chef_server_url") + " and that the server is reachable"
	}
	return msg
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	configPath = ""
	vaultMode = ""
	verbose = false
	debug = false
	exitCode = kerrors.ExitOK
	Logger = logger.Logger{}
	resetSyncCommandState()
	resetCacheCommandState()
	resetLogCommandState()
	resetDoctorCommandState()
	for _, c := range Commands() {
		resetFlags(c)
	}
}

// resetFlags clears the changed state of c's flags and its subcommands'.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
