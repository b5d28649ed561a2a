package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/ringline/console/cmd/consolectl/internal/dirctx"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the admin API",
	Long: `Signs in with an administrator username and password. The access and
refresh tokens are kept in the credential store, and expired access tokens are
refreshed transparently by later commands.

Prompts for anything not given by flags unless --non-interactive is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		if cfg.ClientProvider.Ephemeral() {
			return errors.New("CONSOLE_TOKEN is set; unset it to sign in with a stored session")
		}

		input, err := loginInput(cfg.NonInteractive)
		if err != nil {
			return err
		}

		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}
		session := c.Session()
		if err := session.Login(cmd.Context(), input); err != nil {
			if msg := session.LastError(); msg != "" {
				return errors.New(msg)
			}
			return err
		}

		identity := session.Identity()
		pterm.Success.Printf("Signed in as %s (%s)\n", session.DisplayName(), identity.Username)
		if role := identity.RoleName(); role != "" {
			pterm.Info.Printf("Role: %s\n", role)
		}

		returnTo, err := dirctx.TakeReturnTo()
		if err != nil {
			pterm.Warning.Printf("Ignoring .console file: %v\n", err)
		} else if returnTo != "" {
			pterm.Info.Printf("Continue where you left off: consolectl views open %s\n", returnTo)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Administrator username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Administrator password (prompted when omitted)")
}

func loginInput(nonInteractive bool) (sdk.LoginInput, error) {
	input := sdk.LoginInput{Username: strings.TrimSpace(loginUsername), Password: loginPassword}
	if input.Username != "" && input.Password != "" {
		return input, nil
	}
	if nonInteractive {
		return input, fmt.Errorf("--username and --password are required in non-interactive mode")
	}

	if input.Username == "" {
		username, err := pterm.DefaultInteractiveTextInput.Show("Username")
		if err != nil {
			return input, err
		}
		input.Username = strings.TrimSpace(username)
	}
	if input.Password == "" {
		password, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
		if err != nil {
			return input, err
		}
		input.Password = password
	}
	return input, nil
}
