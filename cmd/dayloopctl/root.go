package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type options struct {
	server   string
	grpcAddr string
	timeout  time.Duration
	actor    string

	dialer func(context.Context, string) (net.Conn, error)
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

func buildRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "dayloopctl",
		Short:        "Inspect and drive a dayloop server",
		Long:         "dayloopctl talks to a running dayloop server: read plans and memory, submit actions, run the day-end pipeline and watch events.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("DAYLOOP_SERVER", "http://localhost:8080"), "HTTP API base URL")
	root.PersistentFlags().StringVar(&opts.grpcAddr, "grpc", envOr("DAYLOOP_GRPC", "localhost:9090"), "gRPC address used by watch")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	root.PersistentFlags().StringVarP(&opts.actor, "actor", "a", envOr("DAYLOOP_ACTOR", ""), "Actor name")

	root.AddCommand(
		newActorsCmd(opts),
		newPlanCmd(opts),
		newReviseCmd(opts),
		newActCmd(opts),
		newPerceiveCmd(opts),
		newSTMCmd(opts),
		newLTMCmd(opts),
		newDayEndCmd(opts),
		newStatusCmd(opts),
		newBackupCmd(opts),
		newBackupsCmd(opts),
		newRestoreCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiError is the error envelope the server writes.
type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

type client struct {
	base string
	http *http.Client
}

func (o *options) client() *client {
	return &client{
		base: strings.TrimRight(o.server, "/"),
		http: &http.Client{Timeout: o.timeout},
	}
}

// actorPath builds an actor-scoped API path.
func (o *options) actorPath(suffix string) (string, error) {
	if o.actor == "" {
		return "", fmt.Errorf("no actor given: pass --actor or set DAYLOOP_ACTOR")
	}
	return "/api/v1/actors/" + url.PathEscape(o.actor) + suffix, nil
}

// do sends body as JSON when non-nil and returns the raw response body.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return raw, nil
}

// call runs one request and prints the indented response to cmd's output.
func (o *options) call(cmd *cobra.Command, method, path string, query url.Values, body any) error {
	raw, err := o.client().do(cmd.Context(), method, path, query, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func printJSON(w io.Writer, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
