package auth

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("Authentication Status")
		pterm.Info.Printf("Server: %s\n", c.BaseURL())

		if cfg.ClientProvider.Ephemeral() {
			pterm.Info.Println("Using CONSOLE_TOKEN; the credential store is not consulted")
			identity, err := c.Auth().Profile(cmd.Context())
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			printIdentity(identity, sdk.NewEvaluator(identity, sdk.WithSuperRoles(cfg.Env.SuperRoles...)))
			return nil
		}

		session := c.Session()
		if session.State() != sdk.StateAuthenticated {
			pterm.Warning.Println("Not signed in; run `consolectl auth login`")
			return nil
		}

		creds, err := c.Store().LoadCredentials()
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		if creds != nil {
			if exp, ok := sdk.NewTokenInspector().ExpiresAt(creds.AccessToken); ok {
				pterm.Info.Printf("Access token expires: %s (%s)\n", exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Second))
			}
		}

		if err := session.ProfileError(); err != nil {
			pterm.Warning.Printf("Profile could not be refreshed: %v\n", err)
		}
		identity := session.Identity()
		if identity == nil {
			pterm.Warning.Println("No cached profile; run `consolectl auth refresh`")
			return nil
		}
		printIdentity(identity, session.Evaluator())
		return nil
	},
}

func printIdentity(identity *sdk.Identity, eval *sdk.Evaluator) {
	pterm.Info.Printf("Signed in as: %s (%s) [%s]\n", identity.DisplayName(), identity.Username, identity.Initials())
	if identity.Email != "" {
		pterm.Info.Printf("Email: %s\n", identity.Email)
	}
	role := identity.RoleName()
	if role == "" {
		role = "(none)"
	}
	if eval.IsSuperRole() {
		role += " (all permissions)"
	}
	pterm.Info.Printf("Role: %s\n", role)

	grants := eval.Grants()
	if len(grants) == 0 {
		return
	}
	pterm.DefaultSection.Println("Permissions")
	table := pterm.TableData{{"RESOURCE", "ACTION"}}
	for _, g := range grants {
		table = append(table, []string{g.Resource, g.Action})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}
