package auth

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-fetch the signed-in profile",
	Long: `Fetches the administrator profile again, picking up role or permission
changes made since sign-in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		session := c.Session()
		if err := session.RefreshProfile(cmd.Context()); err != nil {
			return fmt.Errorf("failed to refresh profile: %w", err)
		}
		pterm.Success.Printf("Profile refreshed; role: %s\n", session.Identity().RoleName())
		return nil
	},
}
