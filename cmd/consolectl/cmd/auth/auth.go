package auth

import (
	"context"

	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

// AuthCmd is the parent command for auth operations
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Commands for signing in and out of the admin API and inspecting the session.`,
}

func init() {
	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
	AuthCmd.AddCommand(refreshCmd)
	AuthCmd.AddCommand(canCmd)
	AuthCmd.AddCommand(exportCmd)
}

func sdkClient(ctx context.Context) (*sdk.Client, error) {
	cfg := config.MustFromContext(ctx)
	return cfg.ClientProvider.SDKClient(ctx)
}
