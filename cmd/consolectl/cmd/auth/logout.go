package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutAll bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Long: `Signs out and clears the stored session. With --all every session of the
administrator is ended on the server, not just this one.

Local credentials are removed even when the server cannot be reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		if err := c.Session().Logout(cmd.Context(), logoutAll); err != nil {
			pterm.Warning.Printf("Server sign-out failed: %v\n", err)
			pterm.Info.Println("Local credentials were removed")
			return nil
		}

		if logoutAll {
			pterm.Success.Println("Signed out of every session")
		} else {
			pterm.Success.Println("Signed out")
		}
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "End every session of this administrator")
}
