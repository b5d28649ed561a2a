package auth

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var canRoles []string

var canCmd = &cobra.Command{
	Use:   "can [<resource> [<action>]]",
	Short: "Check a permission or role of the signed-in administrator",
	Long: `Checks the cached profile without contacting the server. The action
defaults to "read". With --role the check passes when any of the given roles is
held. Exits non-zero when the check fails.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(canRoles) == 0 {
			return errors.New("name a resource or pass --role")
		}

		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}
		session := c.Session()
		if session.State() != sdk.StateAuthenticated {
			return sdk.ErrNotAuthenticated
		}

		if len(args) > 0 {
			req := sdk.Requirement{Resource: args[0]}
			if len(args) == 2 {
				req.Action = args[1]
			}
			if !session.HasPermission(req.Resource, req.Action) {
				return fmt.Errorf("missing permission %s", req)
			}
			pterm.Success.Printf("Allowed: %s\n", req)
		}

		if len(canRoles) > 0 {
			if !session.HasAnyRole(canRoles...) {
				return fmt.Errorf("role %q is not one of %v", session.Identity().RoleName(), canRoles)
			}
			pterm.Success.Printf("Role %s accepted\n", session.Identity().RoleName())
		}
		return nil
	},
}

func init() {
	canCmd.Flags().StringSliceVar(&canRoles, "role", nil, "Acceptable role (repeatable)")
}
