package dirctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// ConsoleFileName is the name of the context file
	ConsoleFileName = ".console"
	// ConsoleFileVersion is the current schema version
	ConsoleFileVersion = "1"
)

// DirectoryContext is the per-directory consolectl state: which server the
// directory talks to and where to resume after the next login.
type DirectoryContext struct {
	Version   string    `json:"version"`
	ServerURL string    `json:"server_url,omitempty"`
	ReturnTo  string    `json:"return_to,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the DirectoryContext is valid
func (dc *DirectoryContext) Validate() error {
	if dc.Version != ConsoleFileVersion {
		return fmt.Errorf("unsupported .console file version: %s (expected %s)", dc.Version, ConsoleFileVersion)
	}

	if dc.ServerURL != "" {
		u, err := url.Parse(dc.ServerURL)
		if err != nil {
			return fmt.Errorf("invalid server_url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server_url must be absolute: %q", dc.ServerURL)
		}
	}

	if dc.ReturnTo != "" && !strings.HasPrefix(dc.ReturnTo, "/") {
		return fmt.Errorf("return_to must be a path: %q", dc.ReturnTo)
	}

	return nil
}

// ReadContext reads the .console file from the current directory
// Returns nil, nil if the file doesn't exist
// Returns nil, error if the file is corrupted or invalid
func ReadContext() (*DirectoryContext, error) {
	data, err := os.ReadFile(ConsoleFileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .console file: %w", err)
	}

	var ctx DirectoryContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("corrupted .console file (invalid JSON): %w", err)
	}

	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid .console file: %w", err)
	}

	return &ctx, nil
}

// WriteContext writes the directory context to .console atomically
// (temp file + rename).
func WriteContext(ctx *DirectoryContext) error {
	if err := ctx.Validate(); err != nil {
		return fmt.Errorf("invalid context: %w", err)
	}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	data = append(data, '\n')

	tmpPath := ConsoleFileName + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write .console.tmp: %w", err)
	}

	if err := os.Rename(tmpPath, ConsoleFileName); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename .console.tmp to .console: %w", err)
	}

	return nil
}

// SetReturnTo records location as the place to resume after login, creating
// the file when needed. serverURL is stored too when non-empty.
func SetReturnTo(serverURL, location string) error {
	ctx, err := readOrNew()
	if err != nil {
		return err
	}
	if serverURL != "" {
		ctx.ServerURL = serverURL
	}
	ctx.ReturnTo = location
	ctx.UpdatedAt = time.Now().UTC()
	return WriteContext(ctx)
}

// TakeReturnTo returns the recorded location and clears it. An empty string
// means nothing was recorded.
func TakeReturnTo() (string, error) {
	ctx, err := ReadContext()
	if err != nil || ctx == nil || ctx.ReturnTo == "" {
		return "", err
	}
	location := ctx.ReturnTo
	ctx.ReturnTo = ""
	ctx.UpdatedAt = time.Now().UTC()
	if err := WriteContext(ctx); err != nil {
		return "", err
	}
	return location, nil
}

// ServerURL returns the server recorded for the current directory, if any.
// A corrupted file is reported as an error rather than ignored.
func ServerURL() (string, error) {
	ctx, err := ReadContext()
	if err != nil || ctx == nil {
		return "", err
	}
	return ctx.ServerURL, nil
}

func readOrNew() (*DirectoryContext, error) {
	ctx, err := ReadContext()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = &DirectoryContext{Version: ConsoleFileVersion}
	}
	return ctx, nil
}
