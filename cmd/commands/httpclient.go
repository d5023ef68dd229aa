package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// gatewayBaseURL returns the gateway's HTTP base URL from the --gateway flag,
// falling back to http://127.0.0.1:18420. It does not read the config file
// or any --host/--port flags.
func gatewayBaseURL(cmd *cli.Command) string {
	if v := cmd.String("gateway"); v != "" {
		return v
	}
	return "http://127.0.0.1:18420"
}

// apiCall is a minimal JSON HTTP client, grounded on the teacher's wsclient
// dial-and-frame helper but adapted to the plain REST surface the gateway
// exposes (internal/gateway/server.go) instead of a WebSocket session.
func apiCall(ctx context.Context, method, url string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway at %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("gateway: %s", errBody.Error)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var gatewayFlag = &cli.StringFlag{
	Name:  "gateway",
	Usage: "ozchestrator gateway base URL",
	Value: "http://127.0.0.1:18420",
}
