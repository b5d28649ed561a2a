package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ringline/console/cmd/consolectl/cmd/api"
	"github.com/ringline/console/cmd/consolectl/cmd/auth"
	"github.com/ringline/console/cmd/consolectl/cmd/views"
	"github.com/ringline/console/cmd/consolectl/internal/client"
	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/spf13/cobra"
)

var (
	serverURL      string
	nonInteractive bool
	storeKind      string
	storeDir       string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "consolectl",
	Short: "Ringline admin console CLI",
	Long: `consolectl signs administrators in to the Ringline admin API, keeps the
session fresh, and checks which console views the signed-in role may open.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env := config.Load()
		if env.NonInteractive {
			nonInteractive = true
		}

		level := env.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		lvl, err := config.ParseLogLevel(level)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)

		server, err := env.ResolveServerURL(serverURL)
		if err != nil {
			return err
		}
		kind := env.Store
		if cmd.Flags().Changed("store") {
			kind = storeKind
		}
		dir := env.StoreDir
		if storeDir != "" {
			dir = storeDir
		}

		nav := client.NewTerminalNavigator(server)
		provider := client.NewProvider(client.Options{
			ServerURL:   server,
			BearerToken: env.Token,
			StoreKind:   kind,
			StoreDir:    dir,
			SuperRoles:  env.SuperRoles,
			Logger:      logger,
			Navigator:   nav,
		})

		cmd.SetContext(config.InjectConfig(cmd.Context(), &config.GlobalConfig{
			ServerURL:      server,
			NonInteractive: nonInteractive,
			Env:            env,
			ClientProvider: provider,
			Navigator:      nav,
		}))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the command line and then closes the client provider, whether
// or not the command succeeded.
func execute(ctx context.Context) error {
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if cmd == nil || cmd.Context() == nil {
		return err
	}
	if cfg, ok := config.FromContext(cmd.Context()); ok {
		if closeErr := cfg.ClientProvider.Close(); closeErr != nil {
			slog.Warn("failed to close client", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Admin API server URL (default $CONSOLE_SERVER_URL, then .console, then http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Disable interactive prompts (also set via CONSOLE_NON_INTERACTIVE=true)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "file", "Credential store: file or sqlite (also set via CONSOLE_STORE)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "Credential store directory (default ~/.console)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error (also set via CONSOLE_LOG_LEVEL)")
	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(views.ViewsCmd)
	rootCmd.AddCommand(api.APICmd)
}
