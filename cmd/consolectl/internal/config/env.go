package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
	"github.com/ringline/console/cmd/consolectl/internal/dirctx"
)

// DefaultServerURL is used when neither a flag, the environment nor the
// directory's .console file names a server.
const DefaultServerURL = "http://localhost:8080"

// Env holds the CONSOLE_* environment settings.
type Env struct {
	// ServerURL is the admin API root (CONSOLE_SERVER_URL).
	ServerURL string
	// NonInteractive disables prompts (CONSOLE_NON_INTERACTIVE).
	NonInteractive bool
	// Store selects the credential backend: file or sqlite (CONSOLE_STORE).
	Store string
	// StoreDir overrides ~/.console (CONSOLE_STORE_DIR).
	StoreDir string
	// LogLevel is one of debug, info, warn, error (CONSOLE_LOG_LEVEL).
	LogLevel string
	// Token is an ephemeral bearer token that bypasses the credential store
	// (CONSOLE_TOKEN).
	Token string
	// SuperRoles hold every permission (CONSOLE_SUPER_ROLES, comma separated).
	SuperRoles []string
}

// Load reads the environment, after loading the nearest .env file.
func Load() *Env {
	loadDotEnv()

	return &Env{
		ServerURL:      env.GetString("CONSOLE_SERVER_URL", ""),
		NonInteractive: env.GetBool("CONSOLE_NON_INTERACTIVE", false),
		Store:          env.GetString("CONSOLE_STORE", "file"),
		StoreDir:       env.GetString("CONSOLE_STORE_DIR", ""),
		LogLevel:       env.GetString("CONSOLE_LOG_LEVEL", "warn"),
		Token:          env.GetString("CONSOLE_TOKEN", ""),
		SuperRoles:     splitList(env.GetString("CONSOLE_SUPER_ROLES", "super_admin")),
	}
}

// ResolveServerURL picks the server in priority order: the --server flag, the
// environment, the directory's .console file, then DefaultServerURL.
func (e *Env) ResolveServerURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if e.ServerURL != "" {
		return e.ServerURL, nil
	}
	server, err := dirctx.ServerURL()
	if err != nil {
		return "", err
	}
	if server != "" {
		return server, nil
	}
	return DefaultServerURL, nil
}

// ParseLogLevel maps a level name to slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadDotEnv searches for a .env file from the current directory up to the
// root and loads the first one found. Variables already set win.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
