package auth

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	shellFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the access token as CONSOLE_TOKEN",
	Long: `Outputs shell commands setting CONSOLE_TOKEN to the current access token,
so scripts and other consolectl invocations can call the admin API without the
credential store.

Supported shells:
  - posix (bash, zsh, sh) - default
  - fish
  - powershell

Usage:
  # POSIX shells (bash/zsh/sh)
  eval $(consolectl auth export)

  # Fish shell
  eval (consolectl auth export --shell fish)

  # PowerShell
  consolectl auth export --shell powershell | Invoke-Expression

The exported token is not refreshed; run the command again once it expires.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&shellFormat, "shell", "", "Shell format: posix, fish, powershell (auto-detected if not specified)")
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := sdkClient(cmd.Context())
	if err != nil {
		return err
	}
	if c.Session().State() != sdk.StateAuthenticated {
		return fmt.Errorf("not signed in\n\nPlease run 'consolectl auth login' first")
	}

	creds, err := c.Store().LoadCredentials()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || !sdk.NewTokenInspector().IsLive(creds.AccessToken) {
		return fmt.Errorf("access token has expired\n\nPlease run 'consolectl auth login' to refresh your credentials")
	}

	format := shellFormat
	if format == "" {
		format = detectShell()
	}

	return writeExport(cmd.OutOrStdout(), os.Stderr, strings.ToLower(format), creds.AccessToken, isTerminal(os.Stdout))
}

// writeExport prints the shell commands to out and, when interactive, a usage
// hint to hint.
func writeExport(out, hint io.Writer, format, accessToken string, interactive bool) error {
	var usage, line string
	switch format {
	case "posix", "bash", "zsh", "sh":
		usage = "eval $(consolectl auth export)"
		line = fmt.Sprintf("export CONSOLE_TOKEN=\"%s\"\n", accessToken)
	case "fish":
		usage = "eval (consolectl auth export --shell fish)"
		line = fmt.Sprintf("set -x CONSOLE_TOKEN \"%s\"\n", accessToken)
	case "powershell", "pwsh", "ps1":
		usage = "consolectl auth export --shell powershell | Invoke-Expression"
		line = fmt.Sprintf("$env:CONSOLE_TOKEN=\"%s\"\n", accessToken)
	default:
		return fmt.Errorf("unsupported shell format: %s\n\nSupported formats: posix, fish, powershell", format)
	}

	// Only print instructions when stdout is a TTY (not being piped/eval'd)
	if interactive {
		fmt.Fprintln(hint, "# Run this command to configure your environment:")
		fmt.Fprintf(hint, "#   %s\n\n", usage)
	}
	_, err := io.WriteString(out, line)
	return err
}

// detectShell attempts to detect the current shell from the SHELL environment variable
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "posix"
	}

	switch filepath.Base(shell) {
	case "fish":
		return "fish"
	case "pwsh", "powershell":
		return "powershell"
	default:
		return "posix"
	}
}

// isTerminal checks if the given file is a terminal (TTY)
func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
