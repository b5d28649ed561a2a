package views

import (
	"context"

	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

// ViewsCmd is the parent command for console view access checks
var ViewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Check access to console views",
	Long:  `Commands for listing the console's views and checking whether the signed-in administrator may open them.`,
}

func init() {
	ViewsCmd.AddCommand(listCmd)
	ViewsCmd.AddCommand(openCmd)
}

func sdkClient(ctx context.Context) (*sdk.Client, error) {
	cfg := config.MustFromContext(ctx)
	return cfg.ClientProvider.SDKClient(ctx)
}
