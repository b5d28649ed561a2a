package views

import (
	"github.com/pterm/pterm"
	consoleviews "github.com/ringline/console/cmd/consolectl/internal/views"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List console views and whether each may be opened",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		snap := c.Session().Snapshot()
		table := pterm.TableData{{"VIEW", "TITLE", "REQUIRES", "ACCESS"}}
		for _, v := range consoleviews.List() {
			decision := sdk.Guard{}.Evaluate(snap, v.Policy, v.Location())
			table = append(table, []string{v.Location(), v.Title, v.Requirements(), decision.Outcome.String()})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}
