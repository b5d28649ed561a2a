package views

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/ringline/console/cmd/consolectl/internal/config"
	consoleviews "github.com/ringline/console/cmd/consolectl/internal/views"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

// ErrAccess is returned when a view may not be opened.
var ErrAccess = errors.New("access refused")

var openCmd = &cobra.Command{
	Use:   "open <view>",
	Short: "Open a console view through the access guard",
	Long: `Evaluates the access guard for a view the way the console does before
rendering it. When not signed in, the view is remembered in .console and shown
again after 'consolectl auth login'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		view, err := consoleviews.Lookup(args[0])
		if err != nil {
			return err
		}

		location := view.Location()
		if strings.HasPrefix(args[0], "/") {
			location = args[0]
		}
		cfg.Navigator.SetLocation(location)

		c, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		decision := c.Authorize(view.Policy, location)
		return report(view, decision)
	},
}

func report(view consoleviews.View, decision sdk.Decision) error {
	switch decision.Outcome {
	case sdk.OutcomeAllow:
		pterm.Success.Printf("%s: access granted\n", view.Title)
		return nil
	case sdk.OutcomeLoading:
		pterm.Info.Println("Sign-in in progress; try again in a moment")
		return nil
	case sdk.OutcomeRedirect:
		pterm.Info.Printf("Sign in to continue (%s)\n", decision.LoginURL())
		return fmt.Errorf("%w: not signed in", ErrAccess)
	case sdk.OutcomeDenied:
		missing := make([]string, len(decision.Missing))
		for i, req := range decision.Missing {
			missing[i] = req.String()
		}
		pterm.Error.Printf("%s: access denied, missing %s\n", view.Title, strings.Join(missing, ", "))
		return fmt.Errorf("%w: missing %s", ErrAccess, strings.Join(missing, ", "))
	case sdk.OutcomeInsufficientRole:
		pterm.Error.Printf("%s: requires role %s\n", view.Title, strings.Join(decision.Roles, " or "))
		return fmt.Errorf("%w: insufficient role", ErrAccess)
	case sdk.OutcomeProfileError:
		pterm.Warning.Printf("%s: profile could not be loaded; retry with `consolectl auth refresh`\n", view.Title)
		return fmt.Errorf("%w: %w", ErrAccess, decision.Err)
	default:
		return fmt.Errorf("%w: %s", ErrAccess, decision.Outcome)
	}
}
