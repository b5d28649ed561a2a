package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ringline/console/cmd/consolectl/internal/dirctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var consoleVars = []string{
	"CONSOLE_SERVER_URL",
	"CONSOLE_NON_INTERACTIVE",
	"CONSOLE_STORE",
	"CONSOLE_STORE_DIR",
	"CONSOLE_LOG_LEVEL",
	"CONSOLE_TOKEN",
	"CONSOLE_SUPER_ROLES",
}

// isolate moves into an empty directory and unsets every CONSOLE_* variable,
// restoring both when the test ends.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range consoleVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.Chdir(dir))
	return dir
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, e *Env)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, e *Env) {
				assert.Equal(t, "", e.ServerURL)
				assert.False(t, e.NonInteractive)
				assert.Equal(t, "file", e.Store)
				assert.Equal(t, "warn", e.LogLevel)
				assert.Equal(t, "", e.Token)
				assert.Equal(t, []string{"super_admin"}, e.SuperRoles)
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"CONSOLE_SERVER_URL":      "https://console.example",
				"CONSOLE_NON_INTERACTIVE": "true",
				"CONSOLE_STORE":           "sqlite",
				"CONSOLE_STORE_DIR":       "/var/lib/console",
				"CONSOLE_LOG_LEVEL":       "debug",
				"CONSOLE_TOKEN":           "tok",
				"CONSOLE_SUPER_ROLES":     "super_admin, owner ,,",
			},
			validate: func(t *testing.T, e *Env) {
				assert.Equal(t, "https://console.example", e.ServerURL)
				assert.True(t, e.NonInteractive)
				assert.Equal(t, "sqlite", e.Store)
				assert.Equal(t, "/var/lib/console", e.StoreDir)
				assert.Equal(t, "debug", e.LogLevel)
				assert.Equal(t, "tok", e.Token)
				assert.Equal(t, []string{"super_admin", "owner"}, e.SuperRoles)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			tt.validate(t, Load())
		})
	}
}

func TestLoad_DotEnvInParentDirectory(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONSOLE_STORE=sqlite\nCONSOLE_LOG_LEVEL=error\n"), 0600))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.Chdir(nested))

	t.Setenv("CONSOLE_LOG_LEVEL", "info")

	e := Load()
	assert.Equal(t, "sqlite", e.Store)
	assert.Equal(t, "info", e.LogLevel, "environment wins over .env")
}

func TestResolveServerURL(t *testing.T) {
	isolate(t)

	e := &Env{}
	got, err := e.ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, got)

	require.NoError(t, dirctx.SetReturnTo("http://from-file.test", ""))
	got, err = e.ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://from-file.test", got)

	e.ServerURL = "http://from-env.test"
	got, err = e.ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://from-env.test", got)

	got, err = e.ResolveServerURL("http://from-flag.test")
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag.test", got)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestConfigContext(t *testing.T) {
	ctx := InjectConfig(t.Context(), &GlobalConfig{ServerURL: "http://x"})
	cfg, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "http://x", cfg.ServerURL)
	assert.Equal(t, cfg, MustFromContext(ctx))

	_, ok = FromContext(t.Context())
	assert.False(t, ok)
	assert.Panics(t, func() { MustFromContext(t.Context()) })
}
