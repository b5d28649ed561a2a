package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ringline/console/cmd/consolectl/internal/config"
	"github.com/ringline/console/pkg/sdk"
	"github.com/spf13/cobra"
)

var data string

// APICmd sends authenticated requests to the admin API
var APICmd = &cobra.Command{
	Use:   "api",
	Short: "Call the admin API with the current session",
	Long: `Sends a request to the admin API with the signed-in bearer token. Paths are
relative to /api/admin unless they already start with it. An expired access
token is refreshed once and the request replayed.`,
}

func init() {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		APICmd.AddCommand(newMethodCmd(method))
	}
}

func newMethodCmd(method string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: method + " an admin API path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sdkClient(cmd.Context())
			if err != nil {
				return err
			}
			return call(cmd.Context(), c, method, args[0], data, cmd.OutOrStdout())
		},
	}
	if method != http.MethodGet && method != http.MethodDelete {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, or @file to read it from a file")
	}
	return cmd
}

func sdkClient(ctx context.Context) (*sdk.Client, error) {
	cfg := config.MustFromContext(ctx)
	return cfg.ClientProvider.SDKClient(ctx)
}

// call sends one request and writes the indented JSON answer to out.
func call(ctx context.Context, c *sdk.Client, method, path, body string, out io.Writer) error {
	var in any
	if body != "" {
		raw, err := readBody(body)
		if err != nil {
			return err
		}
		in = raw
	}

	var resp json.RawMessage
	if err := c.Do(ctx, method, apiPath(path), in, &resp); err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp, "", "  "); err != nil {
		// Not JSON; print as received.
		_, err = out.Write(resp)
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(out)
	return err
}

func readBody(body string) (json.RawMessage, error) {
	raw := []byte(body)
	if name, ok := strings.CutPrefix(body, "@"); ok {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// apiPath roots path under the admin API prefix.
func apiPath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasPrefix(path, sdk.ProtectedPrefix) {
		return path
	}
	return strings.TrimSuffix(sdk.ProtectedPrefix, "/") + path
}
